package beat

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/audiolibrelab/wavesync/internal/pcm"
)

const testRate = 44100

// clickTrack returns silence with a short decaying 1 kHz burst at each time.
func clickTrack(seconds float64, clicks []float64) []float32 {
	out := make([]float32, int(seconds*testRate))
	rate := float64(testRate)
	burst := int(0.005 * rate)
	for _, at := range clicks {
		start := int(at * testRate)
		for j := 0; j < burst && start+j < len(out); j++ {
			decay := math.Exp(-float64(j) / float64(burst/3))
			out[start+j] = float32(0.9 * decay * math.Sin(2*math.Pi*1000*float64(j)/testRate))
		}
	}
	return out
}

func TestDetect_ClickTrack(t *testing.T) {
	clicks := []float64{0.25, 0.75, 1.25, 1.75, 2.25, 2.75}
	mono := clickTrack(3, clicks)

	for _, algo := range []string{"SpecFlux", "Hfc", "Energy"} {
		t.Run(algo, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Algorithm = algo
			times, err := Detect(mono, testRate, opts)
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if len(times) != len(clicks) {
				t.Fatalf("Expected %d onsets, got %d: %v", len(clicks), len(times), times)
			}

			tolerance := float64(opts.BufSize) / testRate
			for i, want := range clicks {
				if math.Abs(times[i]-want) > tolerance {
					t.Errorf("Onset %d at %.4fs, expected %.4fs within %.4fs", i, times[i], want, tolerance)
				}
			}
		})
	}
}

func TestDetect_AllAlgorithmsRun(t *testing.T) {
	mono := clickTrack(2, []float64{0.5, 1.0, 1.5})
	for _, algo := range Algorithms() {
		opts := DefaultOptions()
		opts.Algorithm = algo
		times, err := Detect(mono, testRate, opts)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", algo, err)
			continue
		}
		for i := 1; i < len(times); i++ {
			if times[i] <= times[i-1] {
				t.Errorf("%s: onsets not increasing: %v", algo, times)
				break
			}
		}
		for _, ts := range times {
			if ts < 0 || ts > 2 {
				t.Errorf("%s: onset %.3f outside the signal", algo, ts)
			}
		}
	}
	if got := len(Algorithms()); got != 9 {
		t.Errorf("Expected 9 algorithms, got %d", got)
	}
}

func TestDetect_Silence(t *testing.T) {
	times, err := Detect(make([]float32, testRate), testRate, DefaultOptions())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(times) != 0 {
		t.Errorf("Expected no onsets in silence, got %v", times)
	}
}

func TestDetect_ShortInput(t *testing.T) {
	times, err := Detect(make([]float32, 100), testRate, DefaultOptions())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if times != nil {
		t.Errorf("Expected nil for input shorter than one buffer, got %v", times)
	}
}

func TestDetect_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
		rate   int
	}{
		{"unknown algorithm", func(o *Options) { o.Algorithm = "Tempo" }, testRate},
		{"buffer not power of two", func(o *Options) { o.BufSize = 500 }, testRate},
		{"hop larger than buffer", func(o *Options) { o.HopSize = 1024 }, testRate},
		{"zero hop", func(o *Options) { o.HopSize = 0 }, testRate},
		{"zero rate", func(o *Options) {}, 0},
	}
	mono := make([]float32, 4096)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			if _, err := Detect(mono, tt.rate, opts); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestPickPeaks(t *testing.T) {
	values := []float64{0, 0, 5, 1, 0, 0, 0, 4, 4, 0, 0, 0, 0, 6, 0, 7, 0, 0}
	got := pickPeaks(values, 1.5, 3)
	want := []int{2, 8, 15}
	if len(got) != len(want) {
		t.Fatalf("Expected peaks %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Peak %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestPrincarg(t *testing.T) {
	for _, p := range []float64{0, 1, -1, 3 * math.Pi, -5 * math.Pi / 2, 10} {
		w := princarg(p)
		if w < -math.Pi || w >= math.Pi {
			t.Errorf("princarg(%v) = %v outside [-pi, pi)", p, w)
		}
		if d := math.Mod(math.Abs(p-w), 2*math.Pi); d > 1e-9 && 2*math.Pi-d > 1e-9 {
			t.Errorf("princarg(%v) = %v is not congruent", p, w)
		}
	}
}

func TestDetectFile(t *testing.T) {
	clicks := []float64{0.5, 1.5}
	path := filepath.Join(t.TempDir(), "clicks.wav")
	buf := &pcm.Buffer{SampleRate: testRate, Channels: 1, Samples: clickTrack(2, clicks)}
	if err := pcm.CreateWAV(path, buf); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	times, err := DetectFile(path, DefaultOptions())
	if err != nil {
		t.Fatalf("DetectFile failed: %v", err)
	}
	if len(times) != len(clicks) {
		t.Fatalf("Expected %d onsets, got %v", len(clicks), times)
	}
}

func TestDetectFile_Missing(t *testing.T) {
	if _, err := DetectFile(filepath.Join(t.TempDir(), "none.flac"), DefaultOptions()); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
