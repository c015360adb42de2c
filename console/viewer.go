// SPDX-License-Identifier: Unlicense OR MIT

package console

import "weenyos/kernel"

// memstateColors mirrors the original's memstate_colors table,
// indexed by owner-PO_KERNEL: index 0 is the kernel, 1 is reserved
// memory, 2 is free, 3-17 cycle through one glyph per process id,
// and 18 is the "shared" overlay color used when a frame's refcount
// is greater than one.
var memstateColors = [...]byte{
	'K', 'R', '.', '1', '2', '3', '4', '5', '6', '7', '8', '9',
	'A', 'B', 'C', 'D', 'E', 'F', 'S',
}

const sharedColorIndex = 18

// colorFor maps a frame owner to its memstateColors index, the same
// "owner - PO_KERNEL" arithmetic the original uses, generalized from
// the three named sentinels to an arbitrary process id.
func colorFor(owner kernel.FrameOwner) byte {
	idx := int(owner) - int(kernel.OwnerKernel)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(memstateColors)-1 {
		idx = (idx-3)%(sharedColorIndex-3) + 3
	}
	return memstateColors[idx]
}

// Viewer renders a Kernel's physical and virtual memory state into a
// Buffer, the Go equivalent of memshow_physical/memshow_virtual/
// memshow_virtual_animate.
type Viewer struct {
	lastTicks uint64
	showing   int
}

// RenderPhysical draws one cell per physical frame: its owner's
// color, or the shared overlay if more than one virtual page
// currently references it.
func (v *Viewer) RenderPhysical(buf *Buffer, k *kernel.Kernel) {
	buf.Printf(0, 32, 0x0F, "PHYSICAL MEMORY")
	n := k.Frames.NumPages()
	for pn := 0; pn < n; pn++ {
		if pn%64 == 0 {
			buf.Printf(1+pn/64, 3, 0x0F, hexAddr(kernel.PageAddress(pn)))
		}
		f := k.Frames.Frame(kernel.PageAddress(pn))
		owner := f.Owner
		if f.Refcount == 0 {
			owner = kernel.OwnerFree
		}
		glyph := colorFor(owner)
		attr := byte(0x07)
		if f.Refcount > 1 {
			glyph = memstateColors[sharedColorIndex]
		}
		buf.Set(1+pn/64, 12+pn%64, NewCell(glyph, attr))
	}
}

// RenderVirtual draws pid's address space: one cell per virtual
// page, in reverse video for user-accessible mappings, the shared
// overlay for frames with refcount greater than one.
func (v *Viewer) RenderVirtual(buf *Buffer, k *kernel.Kernel, pid int, maxVA kernel.VirtAddr) {
	buf.Printf(10, 26, 0x0F, "VIRTUAL ADDRESS SPACE")
	root := k.PT.TableAt(k.Processes[pid].PageTableAddr)
	for va := kernel.VirtAddr(0); va < maxVA; va += kernel.PageSize {
		m := k.PT.VirtualMemoryLookup(root, va)
		var glyph byte = ' '
		attr := byte(0x07)
		if !m.Unmapped() {
			f := k.Frames.Frame(m.PhysAddr)
			owner := f.Owner
			if f.Refcount == 0 {
				owner = kernel.OwnerFree
			}
			glyph = colorFor(owner)
			if m.Perm&kernel.PTEUser != 0 {
				attr = 0x70 // reverse video
			}
			if f.Refcount > 1 {
				glyph = memstateColors[sharedColorIndex]
			}
		}
		pn := kernel.PageNumber(kernel.PhysAddr(va))
		if pn%64 == 0 {
			buf.Printf(11+pn/64, 3, 0x0F, hexAddr(kernel.PhysAddr(va)))
		}
		buf.Set(11+pn/64, 12+pn%64, NewCell(glyph, attr))
	}
}

// Animate advances the "which process is shown" rotation by one step
// if at least HZ/2 ticks have passed since the last switch, skipping
// any process slot that has gone P_FREE, then draws that process's
// virtual address space if it is displaying.
func (v *Viewer) Animate(buf *Buffer, k *kernel.Kernel, maxVA kernel.VirtAddr, hz int) {
	if v.lastTicks == 0 || k.Ticks-v.lastTicks >= uint64(hz/2) {
		v.lastTicks = k.Ticks
		v.showing++
	}
	n := len(k.Processes)
	for i := 0; i <= 2*n && k.Processes[v.showing%n].State == kernel.ProcFree; i++ {
		v.showing++
	}
	v.showing %= n
	if k.Processes[v.showing].State != kernel.ProcFree && k.Processes[v.showing].DisplayStatus {
		v.RenderVirtual(buf, k, v.showing, maxVA)
	}
}

func hexAddr(addr kernel.PhysAddr) string {
	const digits = "0123456789ABCDEF"
	var buf [8]byte
	v := uint32(addr)
	for i := 7; i >= 0; i-- {
		buf[i] = digits[v&0xF]
		v >>= 4
	}
	return "0x" + string(buf[:]) + " "
}
