// SPDX-License-Identifier: Unlicense OR MIT

package heap

import (
	"cmp"
	"encoding/binary"
	"log/slog"
	"slices"
)

// Ptr is a handle into a Heap's arena: the offset, relative to the
// start of the region Sbrk grows, of the first byte a caller may use.
// The original allocator hands back a raw pointer computed from
// sbrk's return value; a hosted Go port cannot do that arithmetic
// safely once the arena is backed by a slice that may be
// reallocated, so every "pointer" here is an offset instead, and
// At/Write translate an offset into the live backing slice on
// demand.
type Ptr uintptr

// NilPtr is the Ptr equivalent of malloc's NULL.
const NilPtr Ptr = ^Ptr(0)

const (
	headerSize  = 32
	offSize     = 0
	offNext     = 8
	offPrev     = 16
	offFreed    = 24
	maxHeapInfo = 1024
)

// Heap is a best-fit, address-ordered free-list allocator, the user
// side of the brk/sbrk interface the kernel exposes. Every block
// (free or allocated) stays linked into the list for its entire
// lifetime; freed is the only bit that changes, which is what keeps
// free() from ever having to ask "is this block already linked".
type Heap struct {
	arena []byte
	head  int64 // arena offset of the first block, -1 if none
	sbrk  Sbrk

	totalAllocs int
	log         *slog.Logger
}

// NewHeap creates an empty heap that grows through sbrk.
func NewHeap(sbrk Sbrk, log *slog.Logger) *Heap {
	return &Heap{sbrk: sbrk, head: -1, log: log}
}

func (h *Heap) blockSize(b int64) uint64  { return binary.LittleEndian.Uint64(h.arena[b+offSize:]) }
func (h *Heap) blockNext(b int64) int64   { return int64(binary.LittleEndian.Uint64(h.arena[b+offNext:])) }
func (h *Heap) blockPrev(b int64) int64   { return int64(binary.LittleEndian.Uint64(h.arena[b+offPrev:])) }
func (h *Heap) blockFreed(b int64) bool   { return h.arena[b+offFreed] != 0 }

func (h *Heap) setBlockSize(b int64, v uint64) { binary.LittleEndian.PutUint64(h.arena[b+offSize:], v) }
func (h *Heap) setBlockNext(b int64, v int64)  { binary.LittleEndian.PutUint64(h.arena[b+offNext:], uint64(v)) }
func (h *Heap) setBlockPrev(b int64, v int64)  { binary.LittleEndian.PutUint64(h.arena[b+offPrev:], uint64(v)) }
func (h *Heap) setBlockFreed(b int64, v bool) {
	if v {
		h.arena[b+offFreed] = 1
	} else {
		h.arena[b+offFreed] = 0
	}
}

func alignUp8(n uint64) uint64 { return (n + 7) &^ 7 }

// At returns a view of the n usable bytes starting at p, for a
// caller that wants to read or write through a Ptr directly instead
// of going through Malloc's zeroing (Calloc) or Realloc's copy.
func (h *Heap) At(p Ptr, n int) []byte {
	off := int64(p)
	return h.arena[off : off+int64(n)]
}

func (h *Heap) grow(n uint64) (int64, error) {
	old, err := h.sbrk(int64(n))
	if err != nil {
		return 0, err
	}
	base := int64(len(h.arena))
	h.arena = append(h.arena, make([]byte, n)...)
	_ = old
	return base, nil
}

// Malloc finds the smallest free block that fits sz bytes, splitting
// it if enough room is left over to host another block header plus
// at least 8 bytes, or else grows the heap and appends a new block.
func (h *Heap) Malloc(sz uint64) (Ptr, error) {
	if sz == 0 {
		return NilPtr, nil
	}
	totalSize := alignUp8(sz) + headerSize

	var bestFit int64 = -1
	var minDiff uint64 = ^uint64(0)
	for cur := h.head; cur != -1; cur = h.blockNext(cur) {
		if h.blockFreed(cur) && h.blockSize(cur) >= totalSize {
			diff := h.blockSize(cur) - totalSize
			if diff < minDiff {
				minDiff = diff
				bestFit = cur
			}
		}
	}

	if bestFit != -1 {
		if h.blockSize(bestFit) >= totalSize+headerSize+8 {
			newBlock := bestFit + int64(totalSize)
			h.setBlockSize(newBlock, h.blockSize(bestFit)-totalSize)
			h.setBlockFreed(newBlock, true)
			h.setBlockNext(newBlock, h.blockNext(bestFit))
			h.setBlockPrev(newBlock, bestFit)
			if next := h.blockNext(bestFit); next != -1 {
				h.setBlockPrev(next, newBlock)
			}
			h.setBlockSize(bestFit, totalSize)
			h.setBlockNext(bestFit, newBlock)
		}
		h.setBlockFreed(bestFit, false)
		h.totalAllocs++
		return Ptr(bestFit + headerSize), nil
	}

	block, err := h.grow(totalSize)
	if err != nil {
		return NilPtr, err
	}
	h.setBlockSize(block, totalSize)
	h.setBlockFreed(block, false)
	h.setBlockNext(block, -1)
	h.setBlockPrev(block, -1)

	if h.head == -1 {
		h.head = block
	} else {
		cur := h.head
		for h.blockNext(cur) != -1 {
			cur = h.blockNext(cur)
		}
		h.setBlockNext(cur, block)
		h.setBlockPrev(block, cur)
	}
	h.totalAllocs++
	return Ptr(block + headerSize), nil
}

// Free marks p's block as available and, since it is already linked
// into the address-ordered list, immediately tries to coalesce it
// with its physically adjacent free neighbors.
func (h *Heap) Free(p Ptr) {
	if p == NilPtr {
		return
	}
	block := int64(p) - headerSize
	h.totalAllocs--
	h.setBlockFreed(block, true)

	if next := h.blockNext(block); next != -1 && h.blockFreed(next) && block+int64(h.blockSize(block)) == next {
		h.setBlockSize(block, h.blockSize(block)+h.blockSize(next))
		nextNext := h.blockNext(next)
		h.setBlockNext(block, nextNext)
		if nextNext != -1 {
			h.setBlockPrev(nextNext, block)
		}
	}
	if prev := h.blockPrev(block); prev != -1 && h.blockFreed(prev) && prev+int64(h.blockSize(prev)) == block {
		h.setBlockSize(prev, h.blockSize(prev)+h.blockSize(block))
		next := h.blockNext(block)
		h.setBlockNext(prev, next)
		if next != -1 {
			h.setBlockPrev(next, prev)
		}
	}
}

// Calloc allocates num*sz bytes, zeroed, refusing if the
// multiplication would overflow.
func (h *Heap) Calloc(num, sz uint64) (Ptr, error) {
	if num == 0 || sz == 0 {
		return NilPtr, nil
	}
	if num > ^uint64(0)/sz {
		return NilPtr, ErrOverflow
	}
	total := num * sz
	p, err := h.Malloc(total)
	if err != nil || p == NilPtr {
		return p, err
	}
	clear(h.At(p, int(total)))
	return p, nil
}

// Realloc grows or shrinks p's allocation to sz bytes. If the
// existing block is already big enough it is reused in place;
// otherwise a new block is allocated, the old contents copied over,
// and the old block freed.
func (h *Heap) Realloc(p Ptr, sz uint64) (Ptr, error) {
	if p == NilPtr {
		return h.Malloc(sz)
	}
	if sz == 0 {
		h.Free(p)
		return NilPtr, nil
	}
	block := int64(p) - headerSize
	if h.blockSize(block) >= sz+headerSize {
		return p, nil
	}
	newPtr, err := h.Malloc(sz)
	if err != nil {
		return NilPtr, err
	}
	copy(h.At(newPtr, int(sz)), h.At(p, int(h.blockSize(block)-headerSize)))
	h.Free(p)
	return newPtr, nil
}

// Defrag repeatedly sweeps the block list merging adjacent,
// address-contiguous free blocks until a full pass makes no further
// progress. Free already merges a block with both of its free
// neighbors, so on a heap changed only through these methods Defrag
// finds nothing left to merge.
func (h *Heap) Defrag() {
	if h.head == -1 {
		return
	}
	for {
		merged := false
		cur := h.head
		for cur != -1 {
			next := h.blockNext(cur)
			if next == -1 {
				break
			}
			if h.blockFreed(cur) && h.blockFreed(next) && cur+int64(h.blockSize(cur)) == next {
				h.setBlockSize(cur, h.blockSize(cur)+h.blockSize(next))
				nextNext := h.blockNext(next)
				h.setBlockNext(cur, nextNext)
				if nextNext != -1 {
					h.setBlockPrev(nextNext, cur)
				}
				merged = true
				continue // stay on cur to look for more merges
			}
			cur = next
		}
		if !merged {
			break
		}
	}
}

// Info summarizes the heap: total free space, the single largest
// free block, and the live allocations sorted largest-first. Info
// reports ErrTooManyAllocations rather than growing Sizes/Ptrs
// without bound, mirroring heap_info's fixed 1024-entry buffer.
type Info struct {
	FreeSpace        uint64
	LargestFreeChunk uint64
	NumAllocs        int
	Sizes            []uint64
	Ptrs             []Ptr
}

func (h *Heap) Info() (Info, error) {
	var info Info
	for cur := h.head; cur != -1; cur = h.blockNext(cur) {
		if h.blockFreed(cur) {
			info.FreeSpace += h.blockSize(cur)
			if h.blockSize(cur) > info.LargestFreeChunk {
				info.LargestFreeChunk = h.blockSize(cur)
			}
		}
	}
	info.NumAllocs = h.totalAllocs
	if info.NumAllocs == 0 {
		return info, nil
	}
	if info.NumAllocs > maxHeapInfo {
		return Info{}, ErrTooManyAllocations
	}

	info.Sizes = make([]uint64, 0, info.NumAllocs)
	info.Ptrs = make([]Ptr, 0, info.NumAllocs)
	for cur := h.head; cur != -1; cur = h.blockNext(cur) {
		if !h.blockFreed(cur) {
			info.Sizes = append(info.Sizes, h.blockSize(cur)-headerSize)
			info.Ptrs = append(info.Ptrs, Ptr(cur+headerSize))
		}
	}

	idx := make([]int, len(info.Sizes))
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int { return cmp.Compare(info.Sizes[b], info.Sizes[a]) })
	sortedSizes := make([]uint64, len(idx))
	sortedPtrs := make([]Ptr, len(idx))
	for i, j := range idx {
		sortedSizes[i] = info.Sizes[j]
		sortedPtrs[i] = info.Ptrs[j]
	}
	info.Sizes, info.Ptrs = sortedSizes, sortedPtrs
	return info, nil
}
