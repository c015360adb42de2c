// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// SbrkInternal implements the kernel side of brk/sbrk: it moves
// pid's program break by difference bytes, unmapping (and freeing)
// pages eagerly when the heap shrinks but never mapping pages when
// it grows — growth is satisfied lazily, by the page fault handler,
// the same asymmetry the original sbrk() has.
func (k *Kernel) SbrkInternal(pid int, difference int64) error {
	cur := &k.Processes[pid]
	oldBreak := cur.ProgramBreak
	newBreak := VirtAddr(int64(oldBreak) + difference)

	if newBreak < cur.OriginalBreak || uintptr(newBreak) >= k.cfg.MemSizeVirtual-PageSize {
		return ErrInvalidArgument
	}

	if newBreak < oldBreak {
		root := k.PT.TableAt(cur.PageTableAddr)
		alignedOld := roundUp(oldBreak, PageSize)
		alignedNew := roundUp(newBreak, PageSize)
		for addr := alignedNew; addr < alignedOld; addr += PageSize {
			k.PT.VirtualMemoryUnmap(root, addr)
		}
	}

	cur.ProgramBreak = newBreak
	return nil
}

func roundUp(v VirtAddr, align uintptr) VirtAddr {
	return VirtAddr((uintptr(v) + align - 1) &^ (align - 1))
}
