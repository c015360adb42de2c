// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import "errors"

// Error is a string-based error type for kernel-internal failures,
// mirroring the original trap-based ABI's use of a single errno-ish
// code rather than a rich error hierarchy.
type Error string

func (e Error) Error() string { return string(e) }

var (
	// ErrOutOfMemory is returned when the physical frame table has no
	// FREE frame left to hand out.
	ErrOutOfMemory = errors.New("kernel: out of physical memory")
	// ErrInvalidArgument covers misaligned addresses, out-of-range
	// physical addresses, and out-of-range break requests.
	ErrInvalidArgument = errors.New("kernel: invalid argument")
	// ErrAlreadyAllocated is returned by AssignPhysicalPage when the
	// requested frame is not FREE.
	ErrAlreadyAllocated = errors.New("kernel: frame already allocated")
	// ErrNoFreeProcessSlot is returned by ProcessFork when every slot
	// in the process table is occupied.
	ErrNoFreeProcessSlot = errors.New("kernel: no free process slot")
	// ErrNoRunnableProcess is returned by Schedule after a full pass
	// over the process table finds nothing eligible to run.
	ErrNoRunnableProcess = errors.New("kernel: no runnable process")
	// ErrExitRequested is returned by Schedule when the keyboard
	// collaborator reports Control-C.
	ErrExitRequested = errors.New("kernel: exit requested")
	// ErrKernelFault marks a fault that occurred outside user mode, or
	// any other condition that leaves the kernel itself in an
	// inconsistent state. Callers should treat it as fatal.
	ErrKernelFault = errors.New("kernel: fatal kernel-mode fault")
)
