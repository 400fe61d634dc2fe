package render

import (
	"image/color"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	spectrumFFTSize = 1024
	spectrumFloorDB = -90.0
)

// drawSpectrum paints a spectrogram in the plot rectangle. Column px is the
// spectrum of the window starting at the first sample of that column, so the
// x axis matches the waveform mode.
func (o *Overlay) drawSpectrum() {
	size := spectrumFFTSize
	for size > len(o.samples) && size > 2 {
		size /= 2
	}
	if size > len(o.samples) {
		return
	}
	hann := window.Hann(size)
	bins := size / 2
	rows := o.plot.Dy()

	cols := make([][]float64, o.plot.Dx())
	peak := spectrumFloorDB
	buf := make([]float64, size)
	for px := range cols {
		lo, _ := o.columnRange(px)
		if lo+size > len(o.samples) {
			lo = len(o.samples) - size
		}
		for i := range buf {
			buf[i] = float64(o.samples[lo+i]) * hann[i]
		}
		coeffs := fft.FFTReal(buf)

		col := make([]float64, rows)
		for row := range col {
			// row 0 is the top of the plot, the highest frequency
			bin := (rows - 1 - row) * bins / rows
			mag := math.Hypot(real(coeffs[bin]), imag(coeffs[bin])) / float64(size)
			db := 20 * math.Log10(mag+1e-12)
			col[row] = db
			peak = math.Max(peak, db)
		}
		cols[px] = col
	}

	span := peak - spectrumFloorDB
	if span <= 0 {
		span = 1
	}
	for px, col := range cols {
		for row, db := range col {
			level := (db - spectrumFloorDB) / span
			o.background.SetRGBA(o.plot.Min.X+px, o.plot.Min.Y+row, heat(level))
		}
	}
}

// heat maps a level in [0, 1] to black, red, yellow, white.
func heat(level float64) color.RGBA {
	level = math.Max(0, math.Min(1, level))
	v := level * 3
	switch {
	case v < 1:
		return color.RGBA{uint8(v * 255), 0, 0, 255}
	case v < 2:
		return color.RGBA{255, uint8((v - 1) * 255), 0, 255}
	default:
		return color.RGBA{255, 255, uint8((v - 2) * 255), 255}
	}
}
