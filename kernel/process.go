// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// ProcessState is the scheduling state of a process table slot.
type ProcessState int

const (
	// ProcFree marks an unused process table slot.
	ProcFree ProcessState = iota
	// ProcRunnable marks a process the scheduler may dispatch to.
	ProcRunnable
	// ProcBroken marks a process that faulted or ran out of memory
	// and is no longer eligible to run, but whose slot has not yet
	// been reclaimed by a PROC_EXIT.
	ProcBroken
)

// Process is one process table entry: the per-process bookkeeping the
// kernel keeps beside the saved register frame. PageTableAddr is
// itself a physical frame the process owns, refcounted exactly like
// any other page table node.
type Process struct {
	PID            int
	State          ProcessState
	Registers      RegisterFrame
	PageTableAddr  PhysAddr
	OriginalBreak  VirtAddr // end of the loaded image; the lowest legal brk
	ProgramBreak   VirtAddr // current end of the heap
	DisplayStatus  bool     // whether the console visualizer highlights this pid
}

// ProcessInit resets slot pid to an empty, unused state. It is called
// once at boot for every slot and again by ProcessFree.
func (k *Kernel) ProcessInit(pid int) {
	k.Processes[pid] = Process{PID: pid, State: ProcFree}
}

// ProcessConfigTables gives process pid a fresh top-level page table
// and maps the kernel's own address range into it, writable by the
// kernel and not accessible to user code, matching the original's "every process's page table includes
// a mapping of the kernel" invariant so traps can run with the
// faulting process's page table still active.
func (k *Kernel) ProcessConfigTables(pid int) error {
	addr, _, err := k.PT.NewPageTable(FrameOwner(pid))
	if err != nil {
		return err
	}
	k.Processes[pid].PageTableAddr = addr
	root := k.PT.TableAt(addr)
	return k.PT.VirtualMemoryMap(root, FrameOwner(pid), 0, 0, uintptr(k.cfg.KernelEnd), PTEWrite)
}

// ProcessSetupStack maps a fresh stack page at the top of the
// process's address space and points RSP at its end, mirroring the
// original process_setup's single-page stack convention.
func (k *Kernel) ProcessSetupStack(pid int) error {
	p := &k.Processes[pid]
	root := k.PT.TableAt(p.PageTableAddr)
	stackTop := VirtAddr(k.cfg.MemSizeVirtual)
	stackAddr, err := k.Frames.Palloc(FrameOwner(pid))
	if err != nil {
		return err
	}
	stackVA := stackTop - PageSize
	if err := k.PT.VirtualMemoryMap(root, FrameOwner(pid), stackVA, stackAddr, PageSize, PTEWrite|PTEUser); err != nil {
		return err
	}
	p.Registers.RSP = stackTop
	p.Registers.CS = SegUserCode
	p.Registers.SS = SegUserData
	return nil
}

// ProcessLoad asks the kernel's Loader collaborator to place program
// programNumber's image into pid's address space, then records the
// image's end address as the process's initial break.
func (k *Kernel) ProcessLoad(pid, programNumber int) error {
	end, err := k.Loader.Load(k, pid, programNumber)
	if err != nil {
		return err
	}
	k.Processes[pid].OriginalBreak = end
	k.Processes[pid].ProgramBreak = end
	return nil
}

// ProcessFork creates a new process in the first free slot other
// than slot 0, with a copy of parent's registers and address space:
// every page parent maps above the kernel range is mapped into the
// child at the same virtual address. A writable page is copied into
// a fresh frame charged to the child; a read-only page shares the
// parent's frame, whose refcount goes up by one. If the frame table
// runs out of memory partway through, ProcessFork releases every
// frame and page table node the child was given, returns its slot to
// ProcFree and reports failure, leaving the parent untouched.
func (k *Kernel) ProcessFork(parentPID int) (int, error) {
	childPID := -1
	for i := 1; i < len(k.Processes); i++ {
		if k.Processes[i].State == ProcFree {
			childPID = i
			break
		}
	}
	if childPID < 0 {
		return -1, ErrNoFreeProcessSlot
	}

	k.ProcessInit(childPID)
	child := &k.Processes[childPID]
	child.PID = childPID

	if err := k.ProcessConfigTables(childPID); err != nil {
		k.ProcessFree(childPID)
		return -1, err
	}

	parent := &k.Processes[parentPID]
	child.Registers = parent.Registers
	child.OriginalBreak = parent.OriginalBreak
	child.ProgramBreak = parent.ProgramBreak

	parentRoot := k.PT.TableAt(parent.PageTableAddr)
	childRoot := k.PT.TableAt(child.PageTableAddr)

	var forkErr error
	k.PT.ForEachMapped(parentRoot, VirtAddr(k.cfg.MemSizeVirtual), func(va VirtAddr, m VAMapping) {
		if forkErr != nil || uintptr(va) < uintptr(k.cfg.KernelEnd) {
			return
		}
		if m.Perm&PTEWrite == 0 {
			// Read-only (and the kernel range, handled above):
			// safe to share the frame outright.
			forkErr = k.PT.VirtualMemoryMap(childRoot, FrameOwner(childPID), va, m.PhysAddr, PageSize, m.Perm)
			if forkErr == nil {
				k.Frames.Ref(m.PhysAddr)
			}
			return
		}
		dst, err := k.Frames.Palloc(FrameOwner(childPID))
		if err != nil {
			forkErr = err
			return
		}
		copy(k.Mem.Slice(dst, PageSize), k.Mem.Slice(m.PhysAddr, PageSize))
		forkErr = k.PT.VirtualMemoryMap(childRoot, FrameOwner(childPID), va, dst, PageSize, m.Perm)
		if forkErr != nil {
			k.Frames.Freepage(dst)
		}
	})
	if forkErr != nil {
		k.ProcessFree(childPID)
		return -1, forkErr
	}

	child.State = ProcRunnable
	child.Registers.RAX = 0
	return childPID, nil
}

// ProcessFree tears pid down: every mapped page is unmapped (and its
// frame freed or decremented), the page table nodes themselves are
// freed, and the slot is returned to ProcFree.
func (k *Kernel) ProcessFree(pid int) {
	p := &k.Processes[pid]
	if p.PageTableAddr != 0 {
		root := k.PT.TableAt(p.PageTableAddr)
		k.PT.ForEachMapped(root, VirtAddr(k.cfg.MemSizeVirtual), func(va VirtAddr, m VAMapping) {
			if uintptr(va) >= uintptr(k.cfg.KernelEnd) {
				k.PT.VirtualMemoryUnmap(root, va)
			}
		})
		k.freePageTableNodes(root)
		k.Frames.Freepage(p.PageTableAddr)
	}
	k.ProcessInit(pid)
}

// freePageTableNodes walks the three non-leaf levels of root and
// frees every intermediate node it owns, since those nodes are
// themselves frames charged to the process being torn down.
func (k *Kernel) freePageTableNodes(root *PageTable) {
	for _, e3 := range root {
		if !e3.present() {
			continue
		}
		pdpt := k.PT.TableAt(e3.addr())
		for _, e2 := range pdpt {
			if !e2.present() {
				continue
			}
			pd := k.PT.TableAt(e2.addr())
			for _, e1 := range pd {
				if e1.present() {
					k.Frames.Freepage(e1.addr())
				}
			}
			k.Frames.Freepage(e2.addr())
		}
		k.Frames.Freepage(e3.addr())
	}
}
