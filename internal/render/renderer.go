package render

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/audiolibrelab/wavesync/internal/playback"
)

// DefaultCadence is the minimum interval between two frames, about 60 Hz.
const DefaultCadence = 16600 * time.Microsecond

// Renderer sweeps a cursor across an overlay, following a playback clock.
type Renderer struct {
	overlay *Overlay
	surface Surface
	cadence time.Duration
	logger  *slog.Logger

	skipped int
	frames  int
}

func NewRenderer(o *Overlay, s Surface, cadence time.Duration) *Renderer {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	return &Renderer{
		overlay: o,
		surface: s,
		cadence: cadence,
		logger:  slog.Default().With("component", "renderer"),
	}
}

// Skipped returns how many ticks were skipped because the clock was busy.
func (r *Renderer) Skipped() int {
	return r.skipped
}

// Frames returns how many cursor frames were presented.
func (r *Renderer) Frames() int {
	return r.frames
}

// Render draws until the user cancels, the clock passes the end of the
// overlay or the producer finishes. It only reads the clock without waiting.
func (r *Renderer) Render(ctx context.Context, clock *playback.Clock, life *playback.Lifecycle) (reason playback.StopReason, err error) {
	frame := NewFrame(r.overlay)
	defer func() {
		r.logger.Debug("Renderer stopped", "reason", reason, "frames", r.frames, "skipped", r.skipped)
	}()

	if err := r.surface.Present(frame.Image(), frame.Image().Bounds()); err != nil {
		return playback.StopNone, fmt.Errorf("failed to present background: %w", err)
	}

	// Wait for the first position, or for the producer to give up before
	// writing one; the loop below then decides how to stop.
	select {
	case <-ctx.Done():
		return playback.StopCancelled, nil
	case <-r.surface.Done():
		return playback.StopCancelled, nil
	case <-life.Done():
	case <-clock.Started():
	}

	ticker := time.NewTicker(r.cadence)
	defer ticker.Stop()

	n := uint64(r.overlay.Len())
	lastX := -1
	for {
		select {
		case <-ctx.Done():
			return playback.StopCancelled, nil
		case <-r.surface.Done():
			return playback.StopCancelled, nil
		case <-ticker.C:
		}
		if r.cancelled(ctx) {
			return playback.StopCancelled, nil
		}

		snap, ok, err := clock.TryRead()
		if err != nil {
			return playback.StopNone, err
		}
		if ok && snap.Position >= n {
			return playback.StopOutOfBounds, nil
		}
		if life.Finished() {
			return playback.StopFinished, nil
		}
		if !ok {
			r.skipped++
			continue
		}

		x := r.overlay.X(snap.Position)
		if x == lastX {
			continue
		}
		dirty := frame.MoveCursor(x)
		if err := r.surface.Present(frame.Image(), dirty); err != nil {
			return playback.StopNone, fmt.Errorf("failed to present frame: %w", err)
		}
		lastX = x
		r.frames++
	}
}

// cancelled checks both cancellation sources without waiting, so a tick that
// raced with a cancel still honours it first.
func (r *Renderer) cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-r.surface.Done():
		return true
	default:
		return false
	}
}
