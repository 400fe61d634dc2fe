// Package pcm reads and writes uncompressed PCM WAV files with go-audio.
package pcm

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Buffer holds interleaved float samples in [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Frames returns the number of frames in the buffer.
func (b *Buffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Mono averages all channels into one.
func (b *Buffer) Mono() []float32 {
	if b.Channels <= 1 {
		return b.Samples
	}
	out := make([]float32, b.Frames())
	for i := range out {
		var sum float32
		for c := 0; c < b.Channels; c++ {
			sum += b.Samples[i*b.Channels+c]
		}
		out[i] = sum / float32(b.Channels)
	}
	return out
}

// ReadWAV decodes a whole WAV file.
func ReadWAV(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// DecodeWAV decodes a WAV stream.
func DecodeWAV(r io.ReadSeeker) (*Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return nil, errors.New("wav file has no format chunk")
	}

	scale := float32(math.Pow(2, float64(dec.BitDepth)-1))
	out := &Buffer{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		Samples:    make([]float32, len(buf.Data)),
	}
	for i, v := range buf.Data {
		out.Samples[i] = float32(v) / scale
	}
	return out, nil
}

// WriteWAV encodes b as 16-bit PCM.
func WriteWAV(w io.WriteSeeker, b *Buffer) error {
	if b.Channels <= 0 || b.SampleRate <= 0 {
		return fmt.Errorf("invalid format: %d channels at %d Hz", b.Channels, b.SampleRate)
	}
	enc := wav.NewEncoder(w, b.SampleRate, 16, b.Channels, 1)

	data := make([]int, len(b.Samples))
	for i, v := range b.Samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		data[i] = int(v * math.MaxInt16)
	}
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: b.Channels, SampleRate: b.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("write pcm: %w", err)
	}
	return enc.Close()
}

// CreateWAV writes b to a new file at path.
func CreateWAV(path string, b *Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteWAV(f, b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Sine returns a mono sine tone of the given length.
func Sine(freq float64, rate int, seconds float64, amp float32) *Buffer {
	n := int(float64(rate) * seconds)
	b := &Buffer{SampleRate: rate, Channels: 1, Samples: make([]float32, n)}
	for i := range b.Samples {
		b.Samples[i] = amp * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return b
}
