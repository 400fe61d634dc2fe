// Package analysis extracts whole-file sample data used to draw overlays
// and to inspect decoded audio.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"

	"github.com/audiolibrelab/wavesync/internal/decode"
	"github.com/audiolibrelab/wavesync/internal/pcm"
)

// Analysis is what the overlay is drawn from.
type Analysis struct {
	// Samples holds the first channel, one value per frame, so sample index
	// and clock position share one axis.
	Samples    []float32
	Beats      []uint64 // frame indices
	BeatTimes  []float64
	SampleRate int
	Channels   int
	Frames     uint64
}

// Duration is the decoded length in seconds.
func (a *Analysis) Duration() float64 {
	if a.SampleRate == 0 {
		return 0
	}
	return float64(a.Frames) / float64(a.SampleRate)
}

// FileSamples decodes the default track of stream into one interleaved buffer.
// Undecodable packets are skipped.
func FileSamples(stream decode.Stream) (*pcm.Buffer, error) {
	track, err := stream.DefaultTrack()
	if err != nil {
		return nil, fmt.Errorf("failed to select track: %w", err)
	}
	buf := &pcm.Buffer{SampleRate: track.SampleRate, Channels: track.Channels}
	if track.Frames > 0 {
		buf.Samples = make([]float32, 0, int(track.Frames)*track.Channels)
	}

	err = eachBlock(stream, track, func(b decode.Block) error {
		buf.Channels = b.Channels
		buf.Samples = append(buf.Samples, b.Samples...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Analyze decodes stream and converts beat times (seconds) to frame indices.
func Analyze(stream decode.Stream, beatTimes []float64) (*Analysis, error) {
	buf, err := FileSamples(stream)
	if err != nil {
		return nil, err
	}
	frames := buf.Frames()
	a := &Analysis{
		Samples:    make([]float32, frames),
		SampleRate: buf.SampleRate,
		Channels:   buf.Channels,
		Frames:     uint64(frames),
		BeatTimes:  beatTimes,
		Beats:      BeatIndices(beatTimes, buf.SampleRate),
	}
	for i := range a.Samples {
		a.Samples[i] = buf.Samples[i*buf.Channels]
	}
	slog.Debug("Analyzed samples", "frames", frames, "channels", buf.Channels, "beats", len(a.Beats))
	return a, nil
}

// BeatIndices converts beat times in seconds to sorted frame indices.
func BeatIndices(times []float64, sampleRate int) []uint64 {
	out := make([]uint64, 0, len(times))
	for _, t := range times {
		if t < 0 || math.IsNaN(t) {
			continue
		}
		out = append(out, uint64(math.Round(t*float64(sampleRate))))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SmallestInterval returns the shortest gap between consecutive beats.
func SmallestInterval(times []float64) (float64, bool) {
	if len(times) < 2 {
		return 0, false
	}
	best := math.Inf(1)
	for i := 1; i < len(times); i++ {
		best = math.Min(best, times[i]-times[i-1])
	}
	return best, true
}

// Packet is one decoded packet of the live sample stream.
type Packet struct {
	Index     int
	Timestamp uint64
	Length    int // frames
	Samples   []float32
}

// StreamPackets decodes stream and sends every block to out, then closes
// out. It stops early when ctx is cancelled.
func StreamPackets(ctx context.Context, stream decode.Stream, out chan<- Packet) error {
	defer close(out)
	track, err := stream.DefaultTrack()
	if err != nil {
		return fmt.Errorf("failed to select track: %w", err)
	}
	index := 0
	return eachBlock(stream, track, func(b decode.Block) error {
		select {
		case out <- Packet{Index: index, Timestamp: b.Timestamp, Length: b.Frames, Samples: b.Samples}:
			index++
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// ExportWAV writes a buffer as 16-bit PCM.
func ExportWAV(path string, buf *pcm.Buffer) error {
	return pcm.CreateWAV(path, buf)
}

func eachBlock(stream decode.Stream, track decode.Track, fn func(decode.Block) error) error {
	for {
		pkt, err := stream.ReadPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read packet: %w", err)
		}
		if pkt.Track != track.ID {
			continue
		}
		b, err := stream.Decode(pkt)
		if err != nil {
			if decode.IsRecoverable(err) {
				slog.Warn("Skipping undecodable packet", "error", err)
				continue
			}
			return fmt.Errorf("failed to decode packet: %w", err)
		}
		if err := fn(b); err != nil {
			return err
		}
	}
}
