package output

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/audiolibrelab/wavesync/internal/decode"
)

const (
	defaultBuffer = 100 * time.Millisecond
	queueDepth    = 4
	drainSlack    = 500 * time.Millisecond
)

// Speaker plays blocks on the default sound device through beep's speaker.
// It is a beep.Streamer fed by a bounded queue: Write blocks while the queue
// is full, and the device reads silence on underrun instead of stopping.
//
// beep's speaker is process-wide, so only one Speaker may be open at a time.
type Speaker struct {
	format    Format
	buffer    time.Duration
	queue     chan [][2]float64
	cur       [][2]float64
	drained   chan struct{}
	release   func() // frees the device once drained, nil when not opened
	mu        sync.Mutex
	closed    bool
	queued    atomic.Int64 // frames written but not yet streamed
	underruns atomic.Uint64
}

// OpenSpeaker initializes the sound device for f and starts streaming.
func OpenSpeaker(f Format, buffer time.Duration) (*Speaker, error) {
	if err := validateFormat(f); err != nil {
		return nil, err
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	sr := beep.SampleRate(f.SampleRate)
	if err := speaker.Init(sr, sr.N(buffer)); err != nil {
		return nil, fmt.Errorf("failed to initialize speaker: %w", err)
	}

	s := newSpeaker(f, buffer)
	s.release = func() {
		speaker.Clear()
		speaker.Close()
	}
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(s.drained)
	})))
	slog.Debug("Speaker opened", "sample_rate", f.SampleRate, "channels", f.Channels, "buffer", buffer)
	return s, nil
}

func newSpeaker(f Format, buffer time.Duration) *Speaker {
	return &Speaker{
		format:  f,
		buffer:  buffer,
		queue:   make(chan [][2]float64, queueDepth),
		drained: make(chan struct{}),
	}
}

// Write queues a block, blocking while the device is behind.
func (s *Speaker) Write(b decode.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if b.Channels != s.format.Channels {
		return fmt.Errorf("block has %d channels, output opened with %d", b.Channels, s.format.Channels)
	}
	s.queued.Add(int64(b.Frames))
	s.queue <- toFrames(b)
	return nil
}

// Stream implements beep.Streamer. It runs on the speaker goroutine.
func (s *Speaker) Stream(samples [][2]float64) (int, bool) {
	n := 0
	for n < len(samples) {
		if len(s.cur) == 0 {
			select {
			case chunk, ok := <-s.queue:
				if !ok {
					return n, n > 0
				}
				s.cur = chunk
				continue
			default:
				for i := n; i < len(samples); i++ {
					samples[i] = [2]float64{}
				}
				s.underruns.Add(1)
				return len(samples), true
			}
		}
		m := copy(samples[n:], s.cur)
		s.cur = s.cur[m:]
		s.queued.Add(-int64(m))
		n += m
	}
	return n, true
}

func (s *Speaker) Err() error {
	return nil
}

// Queued returns the number of frames written but not yet streamed.
func (s *Speaker) Queued() int64 {
	return s.queued.Load()
}

// Underruns returns how many device reads found the queue empty.
func (s *Speaker) Underruns() uint64 {
	return s.underruns.Load()
}

// Close stops accepting blocks, waits for queued audio to play out and
// releases the device. The wait is extended for as long as the queue keeps
// draining; it gives up only when the device stops consuming.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.waitDrained()
	if s.release != nil {
		s.release()
	}
	slog.Debug("Speaker closed", "underruns", s.Underruns())
	return nil
}

func (s *Speaker) waitDrained() {
	for {
		remaining := s.queued.Load()
		timeout := s.framesDuration(remaining) + 2*s.buffer + drainSlack
		select {
		case <-s.drained:
			return
		case <-time.After(timeout):
			if left := s.queued.Load(); left < remaining {
				continue
			}
			slog.Warn("Speaker did not drain in time", "timeout", timeout, "frames_left", remaining)
			return
		}
	}
}

func (s *Speaker) framesDuration(frames int64) time.Duration {
	if frames <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(s.format.SampleRate)
}

func toFrames(b decode.Block) [][2]float64 {
	frames := make([][2]float64, b.Frames)
	switch b.Channels {
	case 1:
		for i := range frames {
			v := float64(b.Samples[i])
			frames[i] = [2]float64{v, v}
		}
	default:
		for i := range frames {
			frames[i] = [2]float64{float64(b.Samples[i*b.Channels]), float64(b.Samples[i*b.Channels+1])}
		}
	}
	return frames
}
