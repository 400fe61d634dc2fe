package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/audiolibrelab/wavesync/internal/decode"
	"github.com/audiolibrelab/wavesync/internal/output"
)

// ErrAlreadyRun is returned by a second call to Orchestrator.Run.
var ErrAlreadyRun = errors.New("playback session already run")

// State is the lifecycle of a playback session.
type State int32

const (
	StateIdle     State = iota
	StateRunning        // producer and renderer active
	StateDraining       // one of them returned
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateDone:
		return "DONE"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// StopReason tells why a renderer returned.
type StopReason int

const (
	StopNone        StopReason = iota
	StopCancelled              // the user closed the display or ctx was cancelled
	StopOutOfBounds            // the clock moved past the rendered samples
	StopFinished               // the producer finished
)

func (r StopReason) String() string {
	switch r {
	case StopCancelled:
		return "cancelled"
	case StopOutOfBounds:
		return "out of bounds"
	case StopFinished:
		return "finished"
	}
	return "none"
}

// Renderer is the consumer side of a session. It must never block the
// producer: the clock may only be read, the lifecycle only observed.
type Renderer interface {
	Render(ctx context.Context, clock *Clock, life *Lifecycle) (StopReason, error)
}

// Options configure an Orchestrator.
type Options struct {
	// StopOnClose stops audio output when the renderer is cancelled.
	StopOnClose bool
}

// Orchestrator runs one producer and one renderer on their own goroutines
// over a shared Clock and Lifecycle. It is single use.
type Orchestrator struct {
	producer *Producer
	renderer Renderer
	clock    *Clock
	life     *Lifecycle
	opts     Options
	state    atomic.Int32
	logger   *slog.Logger

	reason StopReason
}

func NewOrchestrator(stream decode.Stream, open output.Opener, renderer Renderer, opts Options) *Orchestrator {
	clock := NewClock()
	life := NewLifecycle()
	return &Orchestrator{
		producer: NewProducer(stream, open, clock, life),
		renderer: renderer,
		clock:    clock,
		life:     life,
		opts:     opts,
		logger:   slog.Default().With("component", "orchestrator"),
	}
}

// Clock returns the session clock, for additional readers such as a progress line.
func (o *Orchestrator) Clock() *Clock {
	return o.clock
}

// Lifecycle returns the session lifecycle.
func (o *Orchestrator) Lifecycle() *Lifecycle {
	return o.life
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// StopReason returns why the renderer returned. Valid once Run returned.
func (o *Orchestrator) StopReason() StopReason {
	return o.reason
}

// ProducerStats returns the producer counters. Valid once Run returned.
func (o *Orchestrator) ProducerStats() ProducerStats {
	return o.producer.Stats()
}

func (o *Orchestrator) setState(s State) {
	prev := State(o.state.Swap(int32(s)))
	o.logger.Debug("State changed", "from", prev, "to", s)
}

// Run starts both goroutines and waits for them. The producer's error is
// returned if both failed.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyRun
	}
	o.logger.Debug("State changed", "from", StateIdle, "to", StateRunning)

	producerCtx, stopProducer := context.WithCancel(ctx)
	defer stopProducer()

	var (
		wg          sync.WaitGroup
		remaining   atomic.Int32
		producerErr error
		rendererErr error
	)
	remaining.Store(2)
	exited := func() {
		if remaining.Add(-1) == 1 {
			o.setState(StateDraining)
		}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer exited()
		producerErr = o.producer.Run(producerCtx)
	}()
	go func() {
		defer wg.Done()
		defer exited()
		o.reason, rendererErr = o.render(ctx)
		o.logger.Debug("Renderer returned", "reason", o.reason, "error", rendererErr)
		if o.opts.StopOnClose && (o.reason == StopCancelled || rendererErr != nil) && !o.life.Finished() {
			o.logger.Debug("Stopping producer after renderer exit")
			stopProducer()
		}
	}()

	wg.Wait()
	o.setState(StateDone)

	if producerErr != nil {
		return fmt.Errorf("producer: %w", producerErr)
	}
	if rendererErr != nil {
		return fmt.Errorf("renderer: %w", rendererErr)
	}
	return nil
}

func (o *Orchestrator) render(ctx context.Context) (reason StopReason, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panic: %v", r)
		}
	}()
	return o.renderer.Render(ctx, o.clock, o.life)
}
