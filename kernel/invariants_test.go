// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import "testing"

func TestCheckVirtualMemoryPassesOnAFreshBoot(t *testing.T) {
	k := newTestKernel(t)
	if _, err := k.Boot("test2"); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if err := k.CheckVirtualMemory(); err != nil {
		t.Errorf("CheckVirtualMemory on a freshly booted kernel: %v", err)
	}
}

func TestCheckVirtualMemoryCatchesProcessZeroInUse(t *testing.T) {
	k := newTestKernel(t)
	if _, err := k.Boot(""); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	k.Processes[0].State = ProcRunnable
	if err := k.CheckVirtualMemory(); err == nil {
		t.Errorf("expected a violation when process 0 is marked runnable")
	}
}

func TestCheckVirtualMemoryHoldsAcrossFork(t *testing.T) {
	k := newTestKernel(t)
	pid, err := k.Boot("")
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if _, err := k.ProcessFork(pid); err != nil {
		t.Fatalf("ProcessFork: %v", err)
	}
	if err := k.CheckVirtualMemory(); err != nil {
		t.Errorf("CheckVirtualMemory after fork: %v", err)
	}
}

func TestDumpPageTableDetectsOverlap(t *testing.T) {
	k := newTestKernel(t)
	pid, err := k.Boot("")
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	root := k.PT.TableAt(k.Processes[pid].PageTableAddr)

	shared, err := k.Frames.Palloc(FrameOwner(pid))
	if err != nil {
		t.Fatalf("Palloc: %v", err)
	}
	va1 := VirtAddr(k.cfg.KernelEnd)
	va2 := va1 + PageSize
	if err := k.PT.VirtualMemoryMap(root, FrameOwner(pid), va1, shared, PageSize, PTEWrite); err != nil {
		t.Fatalf("map va1: %v", err)
	}
	if err := k.PT.VirtualMemoryMap(root, FrameOwner(pid), va2, shared, PageSize, PTEWrite); err != nil {
		t.Fatalf("map va2: %v", err)
	}

	if _, err := k.DumpPageTable(root, VirtAddr(k.cfg.MemSizeVirtual)); err == nil {
		t.Errorf("expected DumpPageTable to report the overlapping mapping")
	}
}
