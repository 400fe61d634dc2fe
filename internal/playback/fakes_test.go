package playback

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/audiolibrelab/wavesync/internal/decode"
	"github.com/audiolibrelab/wavesync/internal/output"
)

type fakeStream struct {
	tracks     []decode.Track
	packets    []decode.Packet
	decodeErrs map[uint64]error // by packet timestamp
	readErr    error            // returned instead of io.EOF once packets run out
	panicAt    int              // packet index whose Decode panics, -1 for none
	next       int
}

// newToneStream returns a single-track stream of n blocks of frames each.
func newToneStream(rate, channels, n, frames int) *fakeStream {
	s := &fakeStream{
		tracks:  []decode.Track{{ID: 1, Codec: "pcm", SampleRate: rate, Channels: channels, Frames: int64(n * frames)}},
		panicAt: -1,
	}
	for i := 0; i < n; i++ {
		s.packets = append(s.packets, decode.Packet{Track: 1, Timestamp: uint64(i * frames), Frames: frames})
	}
	return s
}

func (s *fakeStream) Tracks() []decode.Track { return s.tracks }

func (s *fakeStream) DefaultTrack() (decode.Track, error) { return decode.SelectDefault(s.tracks) }

func (s *fakeStream) ReadPacket() (decode.Packet, error) {
	if s.next >= len(s.packets) {
		if s.readErr != nil {
			return decode.Packet{}, s.readErr
		}
		return decode.Packet{}, io.EOF
	}
	p := s.packets[s.next]
	s.next++
	return p, nil
}

func (s *fakeStream) Decode(p decode.Packet) (decode.Block, error) {
	if s.panicAt >= 0 && s.next-1 == s.panicAt {
		panic("corrupt packet")
	}
	if err, ok := s.decodeErrs[p.Timestamp]; ok {
		return decode.Block{}, err
	}
	ch := s.tracks[0].Channels
	return decode.Block{
		Timestamp:  p.Timestamp,
		Frames:     p.Frames,
		Channels:   ch,
		SampleRate: s.tracks[0].SampleRate,
		Samples:    make([]float32, p.Frames*ch),
	}, nil
}

func (s *fakeStream) Close() error { return nil }

type fakeOutput struct {
	mu       sync.Mutex
	opens    int
	formats  []output.Format
	blocks   []decode.Block
	closed   bool
	openErr  error
	writeErr error
	delay    time.Duration
}

func (o *fakeOutput) opener() output.Opener {
	return func(f output.Format) (output.Output, error) {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.opens++
		o.formats = append(o.formats, f)
		if o.openErr != nil {
			return nil, o.openErr
		}
		return o, nil
	}
}

func (o *fakeOutput) Write(b decode.Block) error {
	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.writeErr != nil {
		return o.writeErr
	}
	o.blocks = append(o.blocks, b)
	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeOutput) written() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.blocks)
}

// rendererFunc adapts a function to the Renderer interface.
type rendererFunc func(ctx context.Context, clock *Clock, life *Lifecycle) (StopReason, error)

func (f rendererFunc) Render(ctx context.Context, clock *Clock, life *Lifecycle) (StopReason, error) {
	return f(ctx, clock, life)
}

// pollingRenderer records every position it manages to read until the producer finishes.
type pollingRenderer struct {
	interval  time.Duration
	positions []uint64
}

func (r *pollingRenderer) Render(ctx context.Context, clock *Clock, life *Lifecycle) (StopReason, error) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return StopCancelled, nil
		case <-ticker.C:
		}
		snap, ok, err := clock.TryRead()
		if err != nil {
			return StopNone, err
		}
		if ok {
			r.positions = append(r.positions, snap.Position)
		}
		if life.Finished() {
			return StopFinished, nil
		}
	}
}

var errBoom = errors.New("boom")
