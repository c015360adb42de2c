// SPDX-License-Identifier: Unlicense OR MIT

// Package gioview renders a console.Buffer with gio, for a desktop
// build of the memory visualizer that would otherwise only ever draw
// into a text-mode CGA framebuffer.
package gioview

import (
	"image"
	"image/color"

	"gioui.org/font/gofont"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"weenyos/console"
)

// View draws a console.Buffer as a monospace character grid, one
// colored rectangle plus glyph row at a time. It keeps no state of
// its own beyond the shaper gio's text package needs, so a caller
// can build one per window and call Render every frame.
type View struct {
	theme *material.Theme
}

func New() *View {
	th := material.NewTheme()
	th.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))
	return &View{theme: th}
}

// cgaPalette maps the 16 CGA foreground color codes gio actually
// needs (the low nibble of a cell's attribute byte) to RGB. Only
// the entries the viewer's memstate_colors table emits are filled in
// precisely; the rest default to light gray like a real CGA adapter.
var cgaPalette = [16]color.NRGBA{
	0x0: {R: 0x00, G: 0x00, B: 0x00, A: 0xFF},
	0x7: {R: 0xAA, G: 0xAA, B: 0xAA, A: 0xFF},
	0x9: {R: 0x55, G: 0x55, B: 0xFF, A: 0xFF},
	0xA: {R: 0x55, G: 0xFF, B: 0x55, A: 0xFF},
	0xC: {R: 0xFF, G: 0x55, B: 0x55, A: 0xFF},
	0xD: {R: 0xFF, G: 0x55, B: 0xFF, A: 0xFF},
	0xE: {R: 0xFF, G: 0xFF, B: 0x55, A: 0xFF},
	0xF: {R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
}

func fgColor(attr byte) color.NRGBA {
	c := cgaPalette[attr&0x0F]
	if c == (color.NRGBA{}) {
		return cgaPalette[0x7]
	}
	return c
}

func bgColor(attr byte) color.NRGBA {
	return cgaPalette[(attr>>4)&0x0F]
}

// Render lays out buf's 25 rows of 80 cells inside gtx, drawing each
// row's background and then its glyphs on top.
func (v *View) Render(gtx layout.Context, buf *console.Buffer) layout.Dimensions {
	cellSize := gtx.Metric.Dp(unit.Dp(10))
	for row := 0; row < console.Rows; row++ {
		rowBytes := make([]byte, console.Cols)
		for col := 0; col < console.Cols; col++ {
			cell := buf.At(row, col)
			rowBytes[col] = cell.Glyph()
			rect := image.Rect(col*cellSize, row*cellSize, (col+1)*cellSize, (row+1)*cellSize)
			paint.FillShape(gtx.Ops, bgColor(cell.Attr()), clip.Rect(rect).Op())
		}
		label := material.Body2(v.theme, string(rowBytes))
		label.Color = fgColor(buf.At(row, 0).Attr())
		offset := op.Offset(image.Pt(0, row*cellSize)).Push(gtx.Ops)
		label.Layout(gtx)
		offset.Pop()
	}
	return layout.Dimensions{Size: image.Pt(console.Cols*cellSize, console.Rows*cellSize)}
}
