// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// RegisterFrame is the saved process state that crosses the trap
// boundary. The CPU trap-frame save/restore stub is responsible for
// filling in IntNo/ErrCode/RIP/RSP on entry and restoring the rest of
// the frame on exit; everything below is what the kernel itself reads
// or writes while a trap is being handled.
type RegisterFrame struct {
	CS, SS uint16 // segment selectors, see SegKernelCode/SegUserCode etc.
	DS, ES uint16

	RAX, RBX, RCX, RDX uint64
	RSI, RDI           uint64
	RBP                uint64
	R8, R9, R10, R11    uint64
	R12, R13, R14, R15  uint64

	IntNo   TrapNo
	ErrCode uint64
	// FaultAddr is CR2 at fault time, filled in by the trap-frame
	// stub for page faults only.
	FaultAddr VirtAddr

	RIP    VirtAddr
	RFLAGS uint64
	RSP    VirtAddr
}

// Segment selectors, matching the flat GDT a hosted x86-64 kernel
// programs: kernel code/data at ring 0, user code/data at ring 3.
const (
	SegKernelCode uint16 = 0x08
	SegKernelData uint16 = 0x10
	SegUserCode   uint16 = 0x1B
	SegUserData   uint16 = 0x23
)

// negOne is the 64-bit all-ones bit pattern a trap handler stores in
// RAX to report a syscall failure (the caller's ABI reads it back as
// the signed value -1).
const negOne = ^uint64(0)
