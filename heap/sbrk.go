// SPDX-License-Identifier: Unlicense OR MIT

// Package heap implements the user-space allocator a process links
// against: a best-fit, address-ordered free list sitting on top of
// whatever grows the process's break.
package heap

import "weenyos/kernel"

// Sbrk moves the caller's program break by increment bytes and
// reports the break's previous value, the same contract the sbrk(2)
// trap exposes to a user process. A negative increment shrinks the
// heap.
type Sbrk func(increment int64) (oldBreak uintptr, err error)

// KernelSbrk adapts a kernel.Kernel process's brk/sbrk trap handling
// into the Sbrk a Heap needs. Real hardware would leave newly
// exposed heap bytes unmapped until the process touches them and
// faults them in; this hosted port has no CPU to deliver that fault,
// so growing the break here also eagerly demand-maps every page it
// just exposed, via the same GrowHeapPage path the page fault
// handler uses.
func KernelSbrk(k *kernel.Kernel, pid int) Sbrk {
	return func(increment int64) (uintptr, error) {
		old := k.Processes[pid].ProgramBreak
		if err := k.SbrkInternal(pid, increment); err != nil {
			return 0, err
		}
		newBreak := k.Processes[pid].ProgramBreak
		if newBreak > old {
			start := kernel.VirtAddr(uintptr(old) &^ (kernel.PageSize - 1))
			for page := start; page < newBreak; page += kernel.PageSize {
				if err := k.GrowHeapPage(pid, page); err != nil {
					return 0, err
				}
			}
		}
		return uintptr(old), nil
	}
}
