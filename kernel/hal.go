// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// The interfaces below are the kernel's external collaborators: the
// boot/program loader and the console and keyboard devices. Their
// concrete implementations are outside this package's scope; the
// kernel only needs to call them. The CPU trap-frame stub and the
// hardware timer have no interface here: the stub calls Dispatch,
// and a timer tick arrives as a TrapTimer trap.

// Loader places a program's image into a freshly configured
// process's address space and reports the image's end address, which
// becomes that process's initial program break.
type Loader interface {
	Load(k *Kernel, pid int, programNumber int) (VirtAddr, error)
}

// ConsoleDevice is the CGA-style text framebuffer the console package
// renders into.
type ConsoleDevice interface {
	WriteCell(row, col int, cell uint16)
	Clear()
}

// Keyboard lets the scheduler's idle loop notice a requested shutdown
// without blocking on real hardware.
type Keyboard interface {
	PollControlC() bool
}
