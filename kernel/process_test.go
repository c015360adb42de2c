// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import "testing"

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	cfg := BootConfig{
		NProc:           8,
		MemSizePhysical: 0x200000,
		MemSizeVirtual:  0x100000,
		KernelEnd:       0x20000,
		ConsoleAddr:     0x1000000, // out of range: no reserved hole needed
		ProcStartAddr:   0x40000,
		ProcSize:        0x8000,
		HZ:              100,
	}
	return New(cfg, BuiltinLoader{}, nil, nil, nil)
}

func TestProcessSetupMarksRunnable(t *testing.T) {
	k := newTestKernel(t)
	pid, err := k.Boot("")
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if k.Processes[pid].State != ProcRunnable {
		t.Fatalf("process %d state = %v, want ProcRunnable", pid, k.Processes[pid].State)
	}
	if k.Processes[0].State != ProcFree {
		t.Fatalf("process 0 state = %v, want ProcFree (it must never be used)", k.Processes[0].State)
	}
}

func TestProcessForkCopiesWritablePages(t *testing.T) {
	k := newTestKernel(t)
	parentPID, err := k.Boot("")
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	// The loader's pages are writable, so fork should copy them
	// rather than share, leaving parent and child with distinct
	// backing frames at the same virtual address.
	parentRoot := k.PT.TableAt(k.Processes[parentPID].PageTableAddr)
	before := k.PT.VirtualMemoryLookup(parentRoot, k.Config().ProcStartAddr)

	childPID, err := k.ProcessFork(parentPID)
	if err != nil {
		t.Fatalf("ProcessFork: %v", err)
	}
	if k.Processes[childPID].State != ProcRunnable {
		t.Fatalf("child state = %v, want ProcRunnable", k.Processes[childPID].State)
	}
	if k.Processes[childPID].Registers.RAX != 0 {
		t.Errorf("child RAX = %d, want 0", k.Processes[childPID].Registers.RAX)
	}

	childRoot := k.PT.TableAt(k.Processes[childPID].PageTableAddr)
	after := k.PT.VirtualMemoryLookup(childRoot, k.Config().ProcStartAddr)
	if after.Unmapped() {
		t.Fatalf("child has no mapping at the parent's program start")
	}
	if after.PhysAddr == before.PhysAddr {
		t.Errorf("writable page was shared instead of copied between parent and child")
	}
}

func TestProcessForkRollsBackOnOutOfMemory(t *testing.T) {
	k := newTestKernel(t)
	parentPID, err := k.Boot("")
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}

	stats := k.Frames.Stats()
	before := stats.Free

	// Drain physical memory down to nothing so the fork fails at its
	// first allocation, the child's top-level page table.
	var drained []PhysAddr
	for {
		pa, err := k.Frames.Palloc(FrameOwner(parentPID))
		if err != nil {
			break
		}
		drained = append(drained, pa)
	}

	if _, err := k.ProcessFork(parentPID); err == nil {
		t.Fatalf("ProcessFork succeeded despite no free memory")
	}

	for _, pa := range drained {
		k.Frames.Freepage(pa)
	}
	after := k.Frames.Stats().Free
	if after != before {
		t.Errorf("free frame count after a rolled-back fork = %d, want %d (no leaked frames)", after, before)
	}
}

func TestProcessFreeReclaimsEveryFrame(t *testing.T) {
	k := newTestKernel(t)
	pid, err := k.Boot("")
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	before := k.Frames.Stats().Free

	k.ProcessFree(pid)

	if k.Processes[pid].State != ProcFree {
		t.Fatalf("process state after ProcessFree = %v, want ProcFree", k.Processes[pid].State)
	}
	stats := k.Frames.Stats()
	if stats.Free <= before {
		t.Errorf("free frame count after ProcessFree = %d, want more than %d", stats.Free, before)
	}
	if stats.ByProcess[pid] != 0 {
		t.Errorf("process %d still owns %d frames after ProcessFree", pid, stats.ByProcess[pid])
	}
}
