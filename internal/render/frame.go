package render

import (
	"image"
	"image/color"
	"image/draw"
)

const cursorWidth = 3

var colorCursor = color.RGBA{0, 110, 0, 110} // premultiplied, drawn over the background

// Frame is the mutable copy of an overlay that the cursor is drawn on.
type Frame struct {
	overlay *Overlay
	img     *image.RGBA
	cursor  image.Rectangle
}

func NewFrame(o *Overlay) *Frame {
	img := image.NewRGBA(o.background.Bounds())
	draw.Draw(img, img.Bounds(), o.background, image.Point{}, draw.Src)
	return &Frame{overlay: o, img: img}
}

func (f *Frame) Image() *image.RGBA {
	return f.img
}

// Cursor returns the current cursor rectangle, empty before the first move.
func (f *Frame) Cursor() image.Rectangle {
	return f.cursor
}

// CursorRect is the highlight rectangle for pixel column x.
func (f *Frame) CursorRect(x int) image.Rectangle {
	plot := f.overlay.plot
	r := image.Rect(x-cursorWidth/2, plot.Min.Y, x-cursorWidth/2+cursorWidth, plot.Max.Y)
	return r.Intersect(plot)
}

// MoveCursor restores the previous cursor area from the background, draws
// the cursor at column x and returns the region that changed.
func (f *Frame) MoveCursor(x int) image.Rectangle {
	prev := f.cursor
	if !prev.Empty() {
		draw.Draw(f.img, prev, f.overlay.background, prev.Min, draw.Src)
	}
	next := f.CursorRect(x)
	draw.Draw(f.img, next, &image.Uniform{colorCursor}, image.Point{}, draw.Over)
	f.cursor = next
	return prev.Union(next)
}
