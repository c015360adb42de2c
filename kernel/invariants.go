// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import (
	"cmp"
	"fmt"
	"slices"
)

// addrRange is one leaf mapping collected while dumping a page table,
// used only to sort and scan for overlaps.
type addrRange struct {
	va, pa PhysAddr
}

// CheckVirtualMemory re-derives every invariant check_virtual_memory
// enforces: process 0 is never used, the kernel's own mappings are
// identity mappings with the expected permissions, every page table
// node has exactly the refcount its sharers imply, and every frame
// with a process owner names a process that is actually alive. It
// returns the first violation found, or nil.
func (k *Kernel) CheckVirtualMemory() error {
	if k.Processes[0].State != ProcFree {
		return fmt.Errorf("kernel: process 0 must never be used")
	}

	for pid := range k.Processes {
		if k.Processes[pid].State == ProcFree {
			continue
		}
		root := k.PT.TableAt(k.Processes[pid].PageTableAddr)
		if err := k.checkPageTableMappings(pid, root); err != nil {
			return err
		}
		if err := k.checkPageTableOwnership(k.Processes[pid].PageTableAddr, FrameOwner(pid)); err != nil {
			return err
		}
	}

	for pn := 0; pn < k.Frames.NumPages(); pn++ {
		f := k.Frames.Frame(PageAddress(pn))
		if f.Refcount > 0 && f.Owner >= 0 {
			if k.Processes[int(f.Owner)].State == ProcFree {
				return fmt.Errorf("kernel: frame %d claims dead owner pid %d", pn, f.Owner)
			}
		}
	}
	return nil
}

// checkPageTableMappings verifies that every address below the
// kernel/identity boundary maps to itself, writable past the data
// segment the way check_page_table_mappings expects. This port has
// no separate "start of data" boundary, so it checks the whole
// identity range is present and writable.
func (k *Kernel) checkPageTableMappings(pid int, root *PageTable) error {
	for va := VirtAddr(0); uintptr(va) < uintptr(k.cfg.KernelEnd); va += PageSize {
		m := k.PT.VirtualMemoryLookup(root, va)
		if m.Unmapped() || m.PhysAddr != PhysAddr(va) {
			return fmt.Errorf("kernel: pid %d kernel range va %#x maps to %#x, want identity", pid, va, m.PhysAddr)
		}
		if m.Perm&PTEWrite == 0 {
			return fmt.Errorf("kernel: pid %d kernel range va %#x not writable", pid, va)
		}
	}
	return nil
}

// checkPageTableOwnership walks every non-leaf node of root and
// checks it is owned by owner with a refcount of exactly one, the
// same recursive sweep check_page_table_ownership_level performs.
func (k *Kernel) checkPageTableOwnership(rootAddr PhysAddr, owner FrameOwner) error {
	rootFrame := k.Frames.Frame(rootAddr)
	if rootFrame == nil || rootFrame.Owner != owner || rootFrame.Refcount != 1 {
		return fmt.Errorf("kernel: page table root at %#x not singly owned by %d", rootAddr, owner)
	}
	return k.checkOwnershipLevel(k.PT.TableAt(rootAddr), 1, owner)
}

func (k *Kernel) checkOwnershipLevel(pt *PageTable, level int, owner FrameOwner) error {
	if level >= PageLevels {
		return nil
	}
	for _, e := range pt {
		if !e.present() {
			continue
		}
		f := k.Frames.Frame(e.addr())
		if f == nil || f.Owner != owner || f.Refcount != 1 {
			return fmt.Errorf("kernel: page table node at %#x has owner=%d refcount=%d, want owner=%d refcount=1", e.addr(), f.Owner, f.Refcount, owner)
		}
		next := k.PT.TableAt(e.addr())
		if err := k.checkOwnershipLevel(next, level+1, owner); err != nil {
			return err
		}
	}
	return nil
}

// DumpPageTable flattens every leaf mapping of root into a sorted,
// address-ordered list and reports the first physical-range overlap
// found — two different virtual pages claiming the same physical
// frame range is always a bug, whether caused by a fork gone wrong
// or a double-map.
func (k *Kernel) DumpPageTable(root *PageTable, maxVA VirtAddr) ([]addrRange, error) {
	var ranges []addrRange
	k.PT.ForEachMapped(root, maxVA, func(va VirtAddr, m VAMapping) {
		ranges = append(ranges, addrRange{va: PhysAddr(va), pa: m.PhysAddr})
	})
	slices.SortFunc(ranges, func(a, b addrRange) int { return cmp.Compare(a.pa, b.pa) })
	for i := 0; i+1 < len(ranges); i++ {
		if ranges[i].pa == ranges[i+1].pa {
			return ranges, fmt.Errorf("kernel: virtual addresses %#x and %#x both map to physical %#x", ranges[i].va, ranges[i+1].va, ranges[i].pa)
		}
	}
	return ranges, nil
}
