// Package render draws the static waveform/spectrum overlay and sweeps a
// playback cursor across it on a display surface.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
)

var ErrNoSamples = errors.New("no samples to draw")

const (
	ModeWaveform = "waveform"
	ModeSpectrum = "spectrum"

	marginLeft   = 50
	marginRight  = 10
	marginTop    = 40
	marginBottom = 50
)

var (
	colorBackground = color.RGBA{255, 255, 255, 255}
	colorAxis       = color.RGBA{0, 0, 0, 255}
	colorWave       = color.RGBA{220, 0, 0, 255}
	colorBeat       = color.RGBA{0, 0, 255, 255}
)

// OverlayOptions control the overlay image.
type OverlayOptions struct {
	Width  int
	Height int
	Mode   string
}

// Overlay is the immutable background drawn once before playback, plus the
// sample axis it was drawn from. Sample index i maps to pixel column X(i).
type Overlay struct {
	background *image.RGBA
	samples    []float32
	beats      []uint64
	plot       image.Rectangle
	mode       string
}

// NewOverlay draws samples (one per frame) and beat markers (frame indices).
func NewOverlay(samples []float32, beats []uint64, opts OverlayOptions) (*Overlay, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	if opts.Width < marginLeft+marginRight+2 || opts.Height < marginTop+marginBottom+2 {
		return nil, fmt.Errorf("overlay too small: %dx%d", opts.Width, opts.Height)
	}
	if opts.Mode == "" {
		opts.Mode = ModeWaveform
	}

	o := &Overlay{
		background: image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height)),
		samples:    samples,
		beats:      beats,
		plot:       image.Rect(marginLeft, marginTop, opts.Width-marginRight, opts.Height-marginBottom),
		mode:       opts.Mode,
	}
	draw.Draw(o.background, o.background.Bounds(), &image.Uniform{colorBackground}, image.Point{}, draw.Src)

	switch opts.Mode {
	case ModeWaveform:
		o.drawWaveform()
	case ModeSpectrum:
		o.drawSpectrum()
	default:
		return nil, fmt.Errorf("unknown overlay mode: %s", opts.Mode)
	}
	o.drawBeats()
	o.drawAxes()
	return o, nil
}

// Background returns the overlay image. Callers must not modify it.
func (o *Overlay) Background() *image.RGBA {
	return o.background
}

// Len is the number of samples on the x axis.
func (o *Overlay) Len() int {
	return len(o.samples)
}

func (o *Overlay) Plot() image.Rectangle {
	return o.plot
}

func (o *Overlay) Beats() []uint64 {
	return o.beats
}

func (o *Overlay) Mode() string {
	return o.mode
}

// X maps a sample index to a pixel column inside the plot rectangle.
func (o *Overlay) X(index uint64) int {
	n := uint64(len(o.samples))
	if index >= n {
		return o.plot.Max.X - 1
	}
	return o.plot.Min.X + int(index*uint64(o.plot.Dx())/n)
}

// columnRange returns the sample range drawn in plot column px.
func (o *Overlay) columnRange(px int) (int, int) {
	n := len(o.samples)
	w := o.plot.Dx()
	lo := px * n / w
	hi := (px + 1) * n / w
	if hi <= lo {
		hi = lo + 1
	}
	// include the next sample so sparse columns stay connected
	if hi < n {
		hi++
	}
	if hi > n {
		hi = n
	}
	return lo, hi
}

func (o *Overlay) drawWaveform() {
	ymin, ymax := o.samples[0], o.samples[0]
	for _, v := range o.samples {
		ymin = min(ymin, v)
		ymax = max(ymax, v)
	}
	if ymin == ymax {
		ymin, ymax = ymin-1, ymax+1
	}
	h := float64(o.plot.Dy() - 1)
	toY := func(v float32) int {
		return o.plot.Max.Y - 1 - int(math.Round(float64(v-ymin)/float64(ymax-ymin)*h))
	}

	for px := 0; px < o.plot.Dx(); px++ {
		lo, hi := o.columnRange(px)
		if lo >= len(o.samples) {
			break
		}
		cmin, cmax := o.samples[lo], o.samples[lo]
		for _, v := range o.samples[lo:hi] {
			cmin = min(cmin, v)
			cmax = max(cmax, v)
		}
		x := o.plot.Min.X + px
		for y := toY(cmax); y <= toY(cmin); y++ {
			o.background.SetRGBA(x, y, colorWave)
		}
	}
}

func (o *Overlay) drawBeats() {
	for _, b := range o.beats {
		if b >= uint64(len(o.samples)) {
			continue
		}
		x := o.X(b)
		for y := o.plot.Min.Y; y < o.plot.Max.Y; y++ {
			o.background.SetRGBA(x, y, colorBeat)
		}
	}
}

func (o *Overlay) drawAxes() {
	for y := o.plot.Min.Y; y <= o.plot.Max.Y; y++ {
		o.background.SetRGBA(o.plot.Min.X-1, y, colorAxis)
	}
	for x := o.plot.Min.X - 1; x < o.plot.Max.X; x++ {
		o.background.SetRGBA(x, o.plot.Max.Y, colorAxis)
	}
}

// WritePNG encodes the overlay background.
func (o *Overlay) WritePNG(w io.Writer) error {
	return png.Encode(w, o.background)
}

// SavePNG writes the overlay background to path.
func (o *Overlay) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := o.WritePNG(f); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}
