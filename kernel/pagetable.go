// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import "unsafe"

// PTEFlags are the permission and presence bits a page table entry
// carries, a subset of the hardware PTE format the port actually
// needs: present, writable, and user-accessible.
type PTEFlags uint64

const (
	PTEPresent PTEFlags = 1 << 0
	PTEWrite   PTEFlags = 1 << 1
	PTEUser    PTEFlags = 1 << 2

	ptePermMask = PTEPresent | PTEWrite | PTEUser
)

// PageTableEntry is the hardware representation of one entry: a
// page-aligned physical address in the high bits, permission flags
// in the low bits, exactly as x86-64 defines it.
type PageTableEntry uint64

func (e PageTableEntry) present() bool { return PTEFlags(e)&PTEPresent != 0 }

func (e PageTableEntry) addr() PhysAddr {
	return PhysAddr(e &^ PageTableEntry(ptePermMask))
}

func (e PageTableEntry) flags() PTEFlags { return PTEFlags(e) & ptePermMask }

func (e *PageTableEntry) set(addr PhysAddr, flags PTEFlags) {
	*e = PageTableEntry(addr) | PageTableEntry(flags|PTEPresent)
}

// PageTable is one level of the 4-level radix tree: the PML4, a
// PDPT, a PD, or a PT, all sharing the same 512-entry shape.
type PageTable [PageTableEntries]PageTableEntry

// VAMapping is the result of a virtual address lookup: which frame,
// if any, backs va, and with what permissions. PageNumber is -1 when
// va is unmapped, mirroring the sentinel the round-trip invariant
// checks against.
type VAMapping struct {
	PageNumber int64
	PhysAddr   PhysAddr
	Perm       PTEFlags
}

// Unmapped reports whether the lookup found no backing frame.
func (m VAMapping) Unmapped() bool { return m.PageNumber < 0 }

// PageTableEngine walks and builds the 4-level page tables that back
// every process's (and the kernel's) address space. Intermediate
// nodes are themselves physical frames, owned by whoever is building
// the mapping, exactly like any other page the frame table hands
// out.
type PageTableEngine struct {
	mem    *PhysicalMemory
	frames *FrameTable
}

func NewPageTableEngine(mem *PhysicalMemory, frames *FrameTable) *PageTableEngine {
	return &PageTableEngine{mem: mem, frames: frames}
}

// NewPageTable allocates and zeroes a fresh top-level page table,
// charged to owner, and returns both its physical address and a
// pointer usable for in-process manipulation.
func (e *PageTableEngine) NewPageTable(owner FrameOwner) (PhysAddr, *PageTable, error) {
	addr, err := e.frames.Palloc(owner)
	if err != nil {
		return 0, nil, err
	}
	return addr, e.TableAt(addr), nil
}

// TableAt reinterprets the page-aligned physical memory at addr as a
// PageTable.
func (e *PageTableEngine) TableAt(addr PhysAddr) *PageTable {
	buf := e.mem.Slice(addr, PageSize)
	return (*PageTable)(unsafe.Pointer(&buf[0]))
}

func shift(level int) uint {
	// Level 4 (PML4) indexes bits 47:39, level 1 (PT) indexes 20:12.
	return uint(12 + 9*(level-1))
}

func index(va VirtAddr, level int) int {
	return int((uintptr(va) >> shift(level)) % PageTableEntries)
}

// lookupOrCreate walks to the next level down from pt, allocating and
// linking a fresh node charged to owner if none exists yet.
func (e *PageTableEngine) lookupOrCreate(pt *PageTable, idx int, owner FrameOwner) (*PageTable, error) {
	entry := &pt[idx]
	if entry.present() {
		return e.TableAt(entry.addr()), nil
	}
	addr, err := e.frames.Palloc(owner)
	if err != nil {
		return nil, err
	}
	entry.set(addr, PTEWrite|PTEUser)
	return e.TableAt(addr), nil
}

// VirtualMemoryMap maps the page-aligned range [va, va+size) to the
// physical range starting at pa, one page at a time, creating any
// missing intermediate page table nodes and charging them (and the
// mapped frames themselves, via the caller's prior Palloc) to owner.
// size and the two addresses must all be page-aligned.
func (e *PageTableEngine) VirtualMemoryMap(root *PageTable, owner FrameOwner, va VirtAddr, pa PhysAddr, size uintptr, perm PTEFlags) error {
	if uintptr(va)%PageSize != 0 || uintptr(pa)%PageSize != 0 || size%PageSize != 0 {
		return ErrInvalidArgument
	}
	for off := uintptr(0); off < size; off += PageSize {
		pml4 := root
		pdpt, err := e.lookupOrCreate(pml4, index(va+VirtAddr(off), 4), owner)
		if err != nil {
			return err
		}
		pd, err := e.lookupOrCreate(pdpt, index(va+VirtAddr(off), 3), owner)
		if err != nil {
			return err
		}
		pt, err := e.lookupOrCreate(pd, index(va+VirtAddr(off), 2), owner)
		if err != nil {
			return err
		}
		pt[index(va+VirtAddr(off), 1)].set(pa+PhysAddr(off), perm)
	}
	return nil
}

// VirtualMemoryLookup walks root to find what, if anything, backs va.
func (e *PageTableEngine) VirtualMemoryLookup(root *PageTable, va VirtAddr) VAMapping {
	pdpte := &root[index(va, 4)]
	if !pdpte.present() {
		return VAMapping{PageNumber: -1}
	}
	pdpt := e.TableAt(pdpte.addr())
	pde := &pdpt[index(va, 3)]
	if !pde.present() {
		return VAMapping{PageNumber: -1}
	}
	pd := e.TableAt(pde.addr())
	pte := &pd[index(va, 2)]
	if !pte.present() {
		return VAMapping{PageNumber: -1}
	}
	pt := e.TableAt(pte.addr())
	leaf := &pt[index(va, 1)]
	if !leaf.present() {
		return VAMapping{PageNumber: -1}
	}
	return VAMapping{
		PageNumber: int64(PageNumber(leaf.addr())),
		PhysAddr:   leaf.addr(),
		Perm:       leaf.flags(),
	}
}

// VirtualMemoryClear removes va's leaf mapping, if any, without
// touching the frame table: the equivalent of the original's
// virtual_memory_map(pagetable, addr, 0, 0), which clears an entry by
// mapping it to physical address 0 with no permission bits. It is
// the primitive VirtualMemoryUnmap builds on; exposing it separately
// lets a caller clear a mapping it knows is not the last reference to
// a shared frame without also freeing that frame.
func (e *PageTableEngine) VirtualMemoryClear(root *PageTable, va VirtAddr) {
	pdpte := &root[index(va, 4)]
	if !pdpte.present() {
		return
	}
	pdpt := e.TableAt(pdpte.addr())
	pde := &pdpt[index(va, 3)]
	if !pde.present() {
		return
	}
	pd := e.TableAt(pde.addr())
	pte := &pd[index(va, 2)]
	if !pte.present() {
		return
	}
	pt := e.TableAt(pte.addr())
	pt[index(va, 1)] = 0
}

// VirtualMemoryUnmap clears va's mapping and returns the frame it
// used to back to the frame table.
func (e *PageTableEngine) VirtualMemoryUnmap(root *PageTable, va VirtAddr) {
	m := e.VirtualMemoryLookup(root, va)
	if m.Unmapped() {
		return
	}
	e.VirtualMemoryClear(root, va)
	e.frames.Freepage(m.PhysAddr)
}

// ForEachMapped walks every leaf entry of root in address order,
// calling fn with the virtual address and mapping it found present.
// It underlies process teardown, fork, and the invariant sweep.
func (e *PageTableEngine) ForEachMapped(root *PageTable, maxVA VirtAddr, fn func(va VirtAddr, m VAMapping)) {
	for va := VirtAddr(0); va < maxVA; va += PageSize {
		if m := e.VirtualMemoryLookup(root, va); !m.Unmapped() {
			fn(va, m)
		}
	}
}
