// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// TrapNo identifies why Dispatch was entered: a system call the user
// program issued deliberately, a hardware fault, or the timer.
type TrapNo int

const (
	TrapSysPanic TrapNo = iota
	TrapSysGetpid
	TrapSysFork
	TrapSysMapping
	TrapSysExit
	TrapSysYield
	TrapSysBrk
	TrapSysSbrk
	TrapSysPageAlloc
	TrapSysMemTog
	TrapTimer
	TrapPageFault
	TrapGPF
)

// Page fault error code bits, matching the x86-64 #PF error word.
const (
	PFErrPresent uint64 = 1 << 0
	PFErrWrite   uint64 = 1 << 1
	PFErrUser    uint64 = 1 << 2
)

// Dispatch is the kernel's sole entry point from a trap: the
// trap-frame stub saves the faulting process's registers into reg
// and calls Dispatch. It plays the role exception() plays in the
// original: copy the registers in, run the requested operation, and
// report which process (if any) is ready to resume. The caller is
// responsible for actually restoring that process's registers and
// returning to user mode — this port has no run()/iret of its own.
func (k *Kernel) Dispatch(pid int, reg RegisterFrame) (int, error) {
	k.Processes[pid].Registers = reg
	cur := &k.Processes[pid]

	if k.Keyboard != nil && k.Keyboard.PollControlC() {
		return 0, ErrExitRequested
	}

	switch reg.IntNo {
	case TrapSysPanic:
		msg := k.readCString(pid, VirtAddr(reg.RDI), 160)
		return 0, panicError{pid: pid, msg: msg}

	case TrapSysGetpid:
		cur.Registers.RAX = uint64(pid)

	case TrapSysFork:
		child, err := k.ProcessFork(pid)
		if err != nil {
			cur.Registers.RAX = negOne
		} else {
			cur.Registers.RAX = uint64(child)
		}

	case TrapSysMapping:
		k.syscallMapping(pid)

	case TrapSysExit:
		k.ProcessFree(pid)
		return k.assertAndSchedule()

	case TrapSysYield:
		return k.assertAndSchedule()

	case TrapSysBrk:
		requested := VirtAddr(cur.Registers.RDI)
		if err := k.SbrkInternal(pid, int64(requested)-int64(cur.ProgramBreak)); err != nil {
			cur.Registers.RAX = negOne
		} else {
			cur.Registers.RAX = 0
		}

	case TrapSysSbrk:
		increment := int64(cur.Registers.RDI)
		old := cur.ProgramBreak
		if err := k.SbrkInternal(pid, increment); err != nil {
			cur.Registers.RAX = negOne
		} else {
			cur.Registers.RAX = uint64(old)
		}

	case TrapSysPageAlloc:
		addr := VirtAddr(cur.Registers.RDI)
		if err := k.syscallPageAlloc(pid, addr); err != nil {
			cur.Registers.RAX = negOne
		} else {
			cur.Registers.RAX = 0
		}

	case TrapSysMemTog:
		k.syscallMemTog(pid, int(cur.Registers.RDI))

	case TrapTimer:
		k.Ticks++
		return k.assertAndSchedule()

	case TrapPageFault:
		k.handlePageFault(pid, reg.FaultAddr, reg.ErrCode)

	case TrapGPF:
		return 0, ErrKernelFault

	default:
		return 0, ErrKernelFault
	}

	k.assertVirtualMemory()
	if cur.State == ProcRunnable {
		return pid, nil
	}
	return k.Schedule()
}

// panicError is returned when a process calls sys_panic; the message
// travels with it instead of only going to a log, since the console
// collaborator is outside this package.
type panicError struct {
	pid int
	msg string
}

func (e panicError) Error() string { return "process " + itoa(e.pid) + " panicked: " + e.msg }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// readCString copies up to max bytes from va in pid's address space,
// stopping at the end of va's page: sys_panic finds its message
// argument with a single-page lookup.
func (k *Kernel) readCString(pid int, va VirtAddr, max int) string {
	if va == 0 {
		return ""
	}
	root := k.PT.TableAt(k.Processes[pid].PageTableAddr)
	m := k.PT.VirtualMemoryLookup(root, va)
	if m.Unmapped() {
		return ""
	}
	off := uintptr(va) % PageSize
	buf := k.Mem.Slice(m.PhysAddr+PhysAddr(off), min(max, int(PageSize-off)))
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n])
}

// syscallPageAlloc maps a single fresh, zeroed page at addr in pid's
// address space, used by allocator tests to grow the heap a page at
// a time without going through brk/sbrk.
func (k *Kernel) syscallPageAlloc(pid int, addr VirtAddr) error {
	if uintptr(addr)%PageSize != 0 || uintptr(addr) >= k.cfg.MemSizeVirtual {
		return ErrInvalidArgument
	}
	pa, err := k.Frames.Palloc(FrameOwner(pid))
	if err != nil {
		return err
	}
	root := k.PT.TableAt(k.Processes[pid].PageTableAddr)
	if err := k.PT.VirtualMemoryMap(root, FrameOwner(pid), addr, pa, PageSize, PTEWrite|PTEUser); err != nil {
		k.Frames.Freepage(pa)
		return err
	}
	return nil
}

// syscallMapping implements sys_mapping: it writes a VAMapping-sized
// descriptor of whatever VA the caller asked about into a buffer the
// caller points at, refusing unless that buffer (and, if the
// descriptor straddles a page boundary, the page past it) is
// user-writable.
func (k *Kernel) syscallMapping(pid int) {
	cur := &k.Processes[pid]
	root := k.PT.TableAt(cur.PageTableAddr)
	dst := VirtAddr(cur.Registers.RDI)
	query := VirtAddr(cur.Registers.RSI)

	dstMap := k.PT.VirtualMemoryLookup(root, dst)
	if dstMap.Unmapped() || dstMap.Perm&(PTEWrite|PTEUser) != PTEWrite|PTEUser {
		return
	}
	const descSize = 24 // int64 + PhysAddr + PTEFlags, all 8 bytes wide
	end := dst + VirtAddr(descSize) - 1
	var endMap VAMapping
	if PageNumber(PhysAddr(end)) != PageNumber(PhysAddr(dst)) {
		endMap = k.PT.VirtualMemoryLookup(root, end)
		if endMap.Unmapped() || endMap.Perm&(PTEWrite|PTEPresent) != PTEWrite|PTEPresent {
			return
		}
	}

	result := k.PT.VirtualMemoryLookup(root, query)
	var desc [descSize]byte
	putVAMapping(desc[:], result)
	off := uintptr(dst) % PageSize
	n := copy(k.Mem.Slice(dstMap.PhysAddr+PhysAddr(off), min(descSize, int(PageSize-off))), desc[:])
	if n < descSize {
		copy(k.Mem.Slice(endMap.PhysAddr, descSize-n), desc[n:])
	}
}

func putVAMapping(buf []byte, m VAMapping) {
	putUint64(buf[0:8], uint64(m.PageNumber))
	putUint64(buf[8:16], uint64(m.PhysAddr))
	putUint64(buf[16:24], uint64(m.Perm))
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// syscallMemTog implements sys_mem_tog: pid 0 toggles the global
// display flag, any other in-range pid equal to the caller's own pid
// toggles that process's own DisplayStatus.
func (k *Kernel) syscallMemTog(pid, target int) {
	if target == 0 {
		k.DispGlobal = !k.DispGlobal
		return
	}
	if target < 0 || target >= len(k.Processes) || target != pid {
		return
	}
	k.Processes[pid].DisplayStatus = !k.Processes[pid].DisplayStatus
}

// handlePageFault implements the three-way branch the original
// INT_PAGEFAULT case performs: a fault taken while the kernel itself
// was running is fatal, a fault within a process's
// [OriginalBreak, ProgramBreak) heap range is grown lazily, and
// anything else kills the faulting process.
func (k *Kernel) handlePageFault(pid int, addr VirtAddr, errCode uint64) {
	cur := &k.Processes[pid]
	if errCode&PFErrUser == 0 {
		k.kernelPanic("kernel-mode page fault at %#x (pid %d, err=%#x)", addr, pid, errCode)
	}
	if err := k.GrowHeapPage(pid, addr); err != nil {
		cur.State = ProcBroken
		return
	}
	cur.State = ProcRunnable
}

// GrowHeapPage demand-maps the page containing addr if addr falls
// within pid's heap range [OriginalBreak, ProgramBreak) and the page
// is not already present. It is the reusable core of the page fault
// handler's heap-growth branch; sys_brk/sys_sbrk callers that need to
// touch newly exposed heap memory without waiting for a real page
// fault call it directly.
func (k *Kernel) GrowHeapPage(pid int, addr VirtAddr) error {
	cur := &k.Processes[pid]
	if addr < cur.OriginalBreak || addr >= cur.ProgramBreak {
		k.logFault(pid, "heap access outside break range", "addr", addr)
		return ErrInvalidArgument
	}

	pageAddr := VirtAddr(uintptr(addr) &^ (PageSize - 1))
	root := k.PT.TableAt(cur.PageTableAddr)
	if m := k.PT.VirtualMemoryLookup(root, pageAddr); !m.Unmapped() && m.Perm&PTEPresent != 0 {
		return nil
	}

	pa, err := k.Frames.Palloc(FrameOwner(pid))
	if err != nil {
		k.logFault(pid, "process out of physical memory")
		return err
	}
	if err := k.PT.VirtualMemoryMap(root, FrameOwner(pid), pageAddr, pa, PageSize, PTEPresent|PTEWrite|PTEUser); err != nil {
		k.Frames.Freepage(pa)
		return err
	}
	return nil
}
