// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import "testing"

func newTestFrameTable(t *testing.T, pages int) *FrameTable {
	t.Helper()
	mem := NewPhysicalMemory(uintptr(pages) * PageSize)
	return NewFrameTable(mem, func(PhysAddr) bool { return false }, 0, nil)
}

func TestPageNumberRoundTrip(t *testing.T) {
	for pn := 0; pn < 16; pn++ {
		addr := PageAddress(pn)
		if got := PageNumber(addr); got != pn {
			t.Errorf("PageNumber(PageAddress(%d)) = %d, want %d", pn, got, pn)
		}
	}
}

func TestFrameTableClassification(t *testing.T) {
	mem := NewPhysicalMemory(8 * PageSize)
	reserved := func(addr PhysAddr) bool { return addr == PageAddress(2) }
	ft := NewFrameTable(mem, reserved, PageAddress(1)+1, nil)

	if got := ft.Frame(PageAddress(0)).Owner; got != OwnerKernel {
		t.Errorf("page 0 owner = %v, want OwnerKernel", got)
	}
	if got := ft.Frame(PageAddress(2)).Owner; got != OwnerReserved {
		t.Errorf("page 2 owner = %v, want OwnerReserved", got)
	}
	if got := ft.Frame(PageAddress(3)).Owner; got != OwnerFree {
		t.Errorf("page 3 owner = %v, want OwnerFree", got)
	}
}

func TestPallocSkipsNonFreeFrames(t *testing.T) {
	ft := newTestFrameTable(t, 4)
	addr, err := ft.Palloc(FrameOwner(1))
	if err != nil {
		t.Fatalf("Palloc: %v", err)
	}
	if ft.Frame(addr).Refcount != 1 {
		t.Fatalf("fresh allocation has refcount %d, want 1", ft.Frame(addr).Refcount)
	}

	var got []PhysAddr
	for i := 0; i < 3; i++ {
		a, err := ft.Palloc(FrameOwner(1))
		if err != nil {
			t.Fatalf("Palloc %d: %v", i, err)
		}
		got = append(got, a)
	}
	for _, a := range got {
		if a == addr {
			t.Errorf("Palloc returned already-allocated frame %#x again", a)
		}
	}

	if _, err := ft.Palloc(FrameOwner(1)); err != ErrOutOfMemory {
		t.Errorf("Palloc on exhausted table: got %v, want ErrOutOfMemory", err)
	}
}

func TestFreepageReturnsFrameOnLastRef(t *testing.T) {
	ft := newTestFrameTable(t, 2)
	addr, err := ft.Palloc(FrameOwner(5))
	if err != nil {
		t.Fatalf("Palloc: %v", err)
	}
	ft.Ref(addr)
	if ft.Frame(addr).Refcount != 2 {
		t.Fatalf("refcount after Ref = %d, want 2", ft.Frame(addr).Refcount)
	}

	ft.Freepage(addr)
	if ft.Frame(addr).Owner != FrameOwner(5) {
		t.Fatalf("frame freed too early: owner = %v", ft.Frame(addr).Owner)
	}
	ft.Freepage(addr)
	if ft.Frame(addr).Owner != OwnerFree {
		t.Fatalf("frame not freed after last ref: owner = %v", ft.Frame(addr).Owner)
	}
}

func TestFreepageOfUnallocatedFrameIsNoop(t *testing.T) {
	ft := newTestFrameTable(t, 2)
	ft.Freepage(PageAddress(0))
	if got := ft.Frame(PageAddress(0)).Owner; got != OwnerFree {
		t.Errorf("freeing an unallocated frame changed its owner to %v", got)
	}
}

func TestAssignPhysicalPageRejectsAlreadyOwned(t *testing.T) {
	ft := newTestFrameTable(t, 2)
	if err := ft.AssignPhysicalPage(PageAddress(0), FrameOwner(1)); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if err := ft.AssignPhysicalPage(PageAddress(0), FrameOwner(2)); err != ErrAlreadyAllocated {
		t.Errorf("second assign to a different owner: got %v, want ErrAlreadyAllocated", err)
	}
}

func TestStatsAccountsForEveryFrame(t *testing.T) {
	ft := newTestFrameTable(t, 4)
	if _, err := ft.Palloc(FrameOwner(1)); err != nil {
		t.Fatalf("Palloc: %v", err)
	}
	s := ft.Stats()
	if s.Total != 4 {
		t.Errorf("Total = %d, want 4", s.Total)
	}
	if s.Free != 3 {
		t.Errorf("Free = %d, want 3", s.Free)
	}
	if s.ByProcess[1] != 1 {
		t.Errorf("ByProcess[1] = %d, want 1", s.ByProcess[1])
	}
}
