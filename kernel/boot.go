// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import (
	"log/slog"
	"os"
)

// BootConfig describes the physical memory map and scheduling
// parameters a Kernel boots with. The zero value is not usable;
// start from DefaultBootConfig.
type BootConfig struct {
	NProc           int
	MemSizePhysical uintptr
	MemSizeVirtual  uintptr
	KernelEnd       PhysAddr
	ConsoleAddr     PhysAddr
	ProcStartAddr   VirtAddr
	ProcSize        uintptr
	HZ              int
}

// DefaultBootConfig returns the memory map the original physical
// layout diagram describes: a kernel image and stack in the first
// 0x80000 bytes, the CGA console at the conventional 0xB8000, and
// PROC_SIZE-sized process slots above that.
func DefaultBootConfig() BootConfig {
	return BootConfig{
		NProc:           16,
		MemSizePhysical: 0x300000,
		MemSizeVirtual:  0x300000,
		KernelEnd:       0x80000,
		ConsoleAddr:     0xB8000,
		ProcStartAddr:   0x100000,
		ProcSize:        0x40000,
		HZ:              100,
	}
}

// Kernel ties together the frame table, the page table engine, the
// process table, and the scheduler, plus the external collaborators
// this package never implements itself.
type Kernel struct {
	cfg BootConfig

	Mem    *PhysicalMemory
	Frames *FrameTable
	PT     *PageTableEngine

	Processes  []Process
	CurrentPID int
	Ticks      uint64
	DispGlobal bool

	Loader   Loader
	Console  ConsoleDevice
	Keyboard Keyboard

	Log *slog.Logger
}

// New builds a Kernel from cfg without running the boot sequence,
// so tests can drive individual components directly.
func New(cfg BootConfig, loader Loader, console ConsoleDevice, keyboard Keyboard, log *slog.Logger) *Kernel {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	mem := NewPhysicalMemory(cfg.MemSizePhysical)
	reserved := func(addr PhysAddr) bool {
		return addr >= cfg.ConsoleAddr && addr < cfg.ConsoleAddr+0x1000
	}
	frames := NewFrameTable(mem, reserved, cfg.KernelEnd, log)
	k := &Kernel{
		cfg:        cfg,
		Mem:        mem,
		Frames:     frames,
		PT:         NewPageTableEngine(mem, frames),
		Processes:  make([]Process, cfg.NProc),
		Loader:     loader,
		Console:    console,
		Keyboard:   keyboard,
		Log:        log,
		DispGlobal: true,
	}
	for i := range k.Processes {
		k.ProcessInit(i)
	}
	return k
}

// Boot runs the init sequence the original kernel(command) entry
// point performs: clear the console, set up the process table, and
// load the program or programs the boot command string names.
// Unlike the freestanding original, Boot returns the pid that should
// run first instead of transferring control via run(), since handing
// control to a process is the trap-frame stub's job in this port.
func (k *Kernel) Boot(command string) (int, error) {
	if k.Console != nil {
		k.Console.Clear()
	}
	switch command {
	case "malloc":
		if err := k.processSetup(1, 1); err != nil {
			return 0, err
		}
	case "alloctests":
		if err := k.processSetup(1, 2); err != nil {
			return 0, err
		}
	case "test":
		if err := k.processSetup(1, 3); err != nil {
			return 0, err
		}
	case "test2":
		for pid := 1; pid <= 2; pid++ {
			if err := k.processSetup(pid, 3); err != nil {
				return 0, err
			}
		}
	default:
		if err := k.processSetup(1, 0); err != nil {
			return 0, err
		}
	}
	k.CurrentPID = 1
	return 1, nil
}

// Config returns the boot-time configuration this Kernel was built
// with.
func (k *Kernel) Config() BootConfig { return k.cfg }

// processSetup loads program programNumber as process pid: configure
// its page tables, load its image, give it a stack, and mark it
// runnable.
func (k *Kernel) processSetup(pid, programNumber int) error {
	k.ProcessInit(pid)
	k.Processes[pid].PID = pid
	if err := k.ProcessConfigTables(pid); err != nil {
		return err
	}
	if err := k.ProcessLoad(pid, programNumber); err != nil {
		return err
	}
	if err := k.ProcessSetupStack(pid); err != nil {
		return err
	}
	k.Processes[pid].State = ProcRunnable
	return nil
}
