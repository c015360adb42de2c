// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// Schedule picks the next runnable process starting just after the
// one that last ran, round-robin, exactly like the original's
// while(1) { pid = (pid+1) % NPROC; ... } spin. On real hardware that
// loop runs forever, checking the keyboard every pass, because there
// is nothing else for the CPU to do. A hosted port cannot spin
// forever without blocking its caller, so Schedule instead makes
// exactly one full pass over the process table — checking the
// keyboard collaborator on every candidate, as the original does —
// and reports ErrNoRunnableProcess if nothing was eligible. The
// caller (the boot loop, or a test) decides whether to retry.
func (k *Kernel) Schedule() (int, error) {
	pid := k.CurrentPID
	n := len(k.Processes)
	for i := 0; i < n; i++ {
		pid = (pid + 1) % n
		if k.Processes[pid].State == ProcRunnable {
			k.CurrentPID = pid
			return pid, nil
		}
		if k.Keyboard != nil && k.Keyboard.PollControlC() {
			return 0, ErrExitRequested
		}
	}
	return 0, ErrNoRunnableProcess
}
