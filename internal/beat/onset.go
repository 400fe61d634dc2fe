// Package beat detects onsets in mono audio with spectral onset detection
// functions and adaptive peak picking.
package beat

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Options configure the detector.
type Options struct {
	Algorithm string  // one of Algorithms
	BufSize   int     // FFT size, a power of two
	HopSize   int     // frames between analysis windows
	Threshold float64 // peak picking sensitivity, higher is stricter
	// SilenceDB gates windows quieter than this level.
	SilenceDB float64
}

// DefaultOptions match the configuration defaults.
func DefaultOptions() Options {
	return Options{Algorithm: "SpecFlux", BufSize: 512, HopSize: 256, Threshold: 1.5, SilenceDB: -70}
}

type spectrum struct {
	mag   []float64
	phase []float64
	coef  []complex128
}

// odf computes one onset detection value from the current spectrum and the
// two previous ones.
type odf func(cur, prev, prev2 *spectrum) float64

var algorithms = map[string]odf{
	"Energy":   energy,
	"Hfc":      hfc,
	"Complex":  complexDomain,
	"Phase":    phaseDeviation(false),
	"WPhase":   phaseDeviation(true),
	"SpecDiff": specDiff,
	"Kl":       kl,
	"Mkl":      mkl,
	"SpecFlux": specFlux,
}

// Algorithms returns the supported onset function names.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for n := range algorithms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Detect returns onset times in seconds, sorted.
func Detect(mono []float32, sampleRate int, opts Options) ([]float64, error) {
	fn, ok := algorithms[opts.Algorithm]
	if !ok {
		return nil, fmt.Errorf("unknown onset algorithm: %s", opts.Algorithm)
	}
	if opts.BufSize <= 0 || opts.BufSize&(opts.BufSize-1) != 0 {
		return nil, fmt.Errorf("buffer size must be a power of two, got %d", opts.BufSize)
	}
	if opts.HopSize <= 0 || opts.HopSize > opts.BufSize {
		return nil, fmt.Errorf("hop size must be within (0, %d], got %d", opts.BufSize, opts.HopSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if len(mono) < opts.BufSize {
		return nil, nil
	}

	values := onsetFunction(mono, opts, fn)
	peaks := pickPeaks(values, opts.Threshold, opts.BufSize/opts.HopSize)

	times := make([]float64, len(peaks))
	for i, p := range peaks {
		times[i] = float64(p*opts.HopSize+opts.BufSize/2) / float64(sampleRate)
	}
	return times, nil
}

// onsetFunction evaluates fn over every hop of mono.
func onsetFunction(mono []float32, opts Options, fn odf) []float64 {
	hann := window.Hann(opts.BufSize)
	frames := (len(mono)-opts.BufSize)/opts.HopSize + 1
	values := make([]float64, frames)
	buf := make([]float64, opts.BufSize)

	var prev, prev2 *spectrum
	for i := 0; i < frames; i++ {
		start := i * opts.HopSize
		power := 0.0
		for j := range buf {
			v := float64(mono[start+j])
			power += v * v
			buf[j] = v * hann[j]
		}
		cur := analyze(buf)

		level := 10 * math.Log10(power/float64(opts.BufSize)+1e-20)
		if prev != nil && prev2 != nil && level > opts.SilenceDB {
			values[i] = math.Max(0, fn(cur, prev, prev2))
		}
		prev2, prev = prev, cur
	}
	return values
}

func analyze(buf []float64) *spectrum {
	coeffs := fft.FFTReal(buf)
	n := len(buf)/2 + 1
	s := &spectrum{mag: make([]float64, n), phase: make([]float64, n), coef: coeffs[:n]}
	for k := 0; k < n; k++ {
		s.mag[k] = cmplx.Abs(coeffs[k])
		s.phase[k] = cmplx.Phase(coeffs[k])
	}
	return s
}

// pickPeaks returns local maxima above an adaptive threshold built from the
// median and mean of the surrounding values. Peaks closer than minGap are merged.
func pickPeaks(values []float64, threshold float64, minGap int) []int {
	const radius = 8
	var peaks []int
	win := make([]float64, 0, 2*radius+1)
	for i := range values {
		lo, hi := max(0, i-radius), min(len(values), i+radius+1)
		win = append(win[:0], values[lo:hi]...)
		sort.Float64s(win)
		median := win[len(win)/2]
		mean := 0.0
		for _, v := range win {
			mean += v
		}
		mean /= float64(len(win))

		v := values[i]
		if v <= 0 || v <= median+threshold*mean {
			continue
		}
		if i > 0 && values[i-1] > v || i+1 < len(values) && values[i+1] >= v {
			continue
		}
		if n := len(peaks); n > 0 && i-peaks[n-1] < minGap {
			if values[peaks[n-1]] < v {
				peaks[n-1] = i
			}
			continue
		}
		peaks = append(peaks, i)
	}
	return peaks
}

func energy(cur, _, _ *spectrum) float64 {
	sum := 0.0
	for _, m := range cur.mag {
		sum += m * m
	}
	return sum / float64(len(cur.mag))
}

func hfc(cur, _, _ *spectrum) float64 {
	sum := 0.0
	for k, m := range cur.mag {
		sum += float64(k+1) * m
	}
	return sum
}

func specFlux(cur, prev, _ *spectrum) float64 {
	sum := 0.0
	for k := range cur.mag {
		if d := cur.mag[k] - prev.mag[k]; d > 0 {
			sum += d
		}
	}
	return sum
}

func specDiff(cur, prev, _ *spectrum) float64 {
	sum := 0.0
	for k := range cur.mag {
		sum += math.Abs(cur.mag[k]*cur.mag[k] - prev.mag[k]*prev.mag[k])
	}
	return math.Sqrt(sum)
}

func kl(cur, prev, _ *spectrum) float64 {
	sum := 0.0
	for k := range cur.mag {
		sum += cur.mag[k] * math.Log(1+cur.mag[k]/(prev.mag[k]+1e-6))
	}
	return sum
}

func mkl(cur, prev, _ *spectrum) float64 {
	sum := 0.0
	for k := range cur.mag {
		sum += math.Log(1 + cur.mag[k]/(prev.mag[k]+1e-6))
	}
	return sum / float64(len(cur.mag))
}

// complexDomain measures the distance between each bin and its value
// predicted from the two previous frames, assuming steady amplitude and
// phase velocity.
func complexDomain(cur, prev, prev2 *spectrum) float64 {
	sum := 0.0
	for k := range cur.coef {
		target := cmplx.Rect(prev.mag[k], 2*prev.phase[k]-prev2.phase[k])
		sum += cmplx.Abs(cur.coef[k] - target)
	}
	return sum
}

func phaseDeviation(weighted bool) odf {
	return func(cur, prev, prev2 *spectrum) float64 {
		sum, weight := 0.0, 0.0
		for k := range cur.phase {
			dev := math.Abs(princarg(cur.phase[k] - 2*prev.phase[k] + prev2.phase[k]))
			w := 1.0
			if weighted {
				w = cur.mag[k]
			}
			sum += w * dev
			weight += w
		}
		if weight == 0 {
			return 0
		}
		return sum / weight
	}
}

// princarg wraps a phase to [-pi, pi).
func princarg(p float64) float64 {
	return p - 2*math.Pi*math.Floor((p+math.Pi)/(2*math.Pi))
}
