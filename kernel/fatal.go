// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import "fmt"

// kernelPanic logs a fatal kernel condition and then panics. It is
// the Go analogue of the teacher's fatal(msg string): an
// unrecoverable error in the kernel's own bookkeeping, as opposed to
// a user process going ProcBroken, which the scheduler simply routes
// around. Nothing in normal operation should ever reach it.
func (k *Kernel) kernelPanic(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if k.Log != nil {
		k.Log.Error("kernel panic", "msg", msg)
	}
	panic(msg)
}

// assertVirtualMemory re-verifies every page-table invariant
// CheckVirtualMemory knows about and panics if one has been
// violated. Dispatch calls it after every trap that could have
// mutated process or frame state, the fault boundary a corrupted
// frame table or page table has to be caught at — by the time a
// caller notices, the kernel's own accounting is already wrong and
// there is nothing left to recover into.
func (k *Kernel) assertVirtualMemory() {
	if err := k.CheckVirtualMemory(); err != nil {
		k.kernelPanic("invariant violation: %v", err)
	}
}

// assertAndSchedule is assertVirtualMemory followed by Schedule, for
// the trap cases (exit, yield, the timer tick) that always hand off
// to the next runnable process rather than falling through to
// Dispatch's own "is the current process still runnable" tail.
func (k *Kernel) assertAndSchedule() (int, error) {
	k.assertVirtualMemory()
	return k.Schedule()
}
