package render

import (
	"image"
	"log/slog"
	"sync"
)

// Surface displays frames. Present receives the full frame and the region
// that changed since the previous call; it must not keep img after
// returning. Done is closed when the user closes the display.
type Surface interface {
	Present(img *image.RGBA, dirty image.Rectangle) error
	Done() <-chan struct{}
	Close() error
}

// Headless is a Surface that only counts frames.
type Headless struct {
	mu       sync.Mutex
	frames   int
	last     image.Rectangle
	done     chan struct{}
	doneOnce sync.Once
}

func NewHeadless() *Headless {
	return &Headless{done: make(chan struct{})}
}

func (h *Headless) Present(img *image.RGBA, dirty image.Rectangle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames++
	h.last = dirty
	return nil
}

// Frames returns how many frames were presented.
func (h *Headless) Frames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

// Cancel simulates the user closing the display.
func (h *Headless) Cancel() {
	h.doneOnce.Do(func() { close(h.done) })
}

func (h *Headless) Done() <-chan struct{} {
	return h.done
}

func (h *Headless) Close() error {
	slog.Debug("Headless surface closed", "frames", h.Frames(), "last_dirty", h.last)
	return nil
}
