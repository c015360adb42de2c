// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// logFault is the common path the page fault and out-of-memory
// branches use to report a process going P_BROKEN, matching the
// console_printf diagnostic the original prints at row 24 before
// killing a process — here routed through the structured logger
// instead of the text console, since the console is a rendering
// concern, not a kernel one.
func (k *Kernel) logFault(pid int, msg string, args ...any) {
	if k.Log == nil {
		return
	}
	k.Log.Warn(msg, append([]any{"pid", pid}, args...)...)
}
