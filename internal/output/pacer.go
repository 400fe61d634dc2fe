package output

import (
	"sync"
	"time"

	"github.com/audiolibrelab/wavesync/internal/decode"
)

// Pacer discards audio but blocks each write for the block's real-time
// duration, so a session without a sound device advances like real playback.
type Pacer struct {
	format  Format
	mu      sync.Mutex
	start   time.Time
	written uint64
	closed  bool
	sleep   func(time.Duration)
	now     func() time.Time
}

func NewPacer(f Format) (*Pacer, error) {
	if err := validateFormat(f); err != nil {
		return nil, err
	}
	return &Pacer{format: f, sleep: time.Sleep, now: time.Now}, nil
}

func (p *Pacer) Write(b decode.Block) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.start.IsZero() {
		p.start = p.now()
	}
	p.written += uint64(b.Frames)

	// Sleep against an absolute deadline so rounding does not accumulate drift.
	deadline := p.start.Add(time.Duration(float64(p.written) / float64(p.format.SampleRate) * float64(time.Second)))
	if d := deadline.Sub(p.now()); d > 0 {
		p.sleep(d)
	}
	return nil
}

// Written returns the number of frames accepted so far.
func (p *Pacer) Written() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

func (p *Pacer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
