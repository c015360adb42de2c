// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import "testing"

func TestSbrkInternalGrowsWithoutMappingEagerly(t *testing.T) {
	k := newTestKernel(t)
	pid, err := k.Boot("")
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	cur := &k.Processes[pid]
	oldBreak := cur.ProgramBreak

	if err := k.SbrkInternal(pid, 4096); err != nil {
		t.Fatalf("SbrkInternal: %v", err)
	}
	if cur.ProgramBreak != oldBreak+4096 {
		t.Errorf("ProgramBreak = %#x, want %#x", cur.ProgramBreak, oldBreak+4096)
	}

	root := k.PT.TableAt(cur.PageTableAddr)
	if m := k.PT.VirtualMemoryLookup(root, oldBreak); !m.Unmapped() {
		t.Errorf("growing the break eagerly mapped a page; it should stay lazy until a fault")
	}
}

func TestSbrkInternalRejectsShrinkingBelowOriginalBreak(t *testing.T) {
	k := newTestKernel(t)
	pid, err := k.Boot("")
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	cur := &k.Processes[pid]
	if err := k.SbrkInternal(pid, -int64(cur.OriginalBreak)-1); err != ErrInvalidArgument {
		t.Errorf("shrinking past OriginalBreak: got %v, want ErrInvalidArgument", err)
	}
}

func TestSbrkInternalShrinkUnmapsPages(t *testing.T) {
	k := newTestKernel(t)
	pid, err := k.Boot("")
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	cur := &k.Processes[pid]
	start := cur.ProgramBreak
	if err := k.SbrkInternal(pid, 2*PageSize); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if err := k.GrowHeapPage(pid, start); err != nil {
		t.Fatalf("GrowHeapPage: %v", err)
	}

	root := k.PT.TableAt(cur.PageTableAddr)
	if m := k.PT.VirtualMemoryLookup(root, start); m.Unmapped() {
		t.Fatalf("page was not mapped before the shrink that should unmap it")
	}

	if err := k.SbrkInternal(pid, -2*PageSize); err != nil {
		t.Fatalf("shrink: %v", err)
	}
	if m := k.PT.VirtualMemoryLookup(root, start); !m.Unmapped() {
		t.Errorf("page still mapped after shrinking the break below it")
	}
}
