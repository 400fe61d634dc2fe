package playback

import (
	"sync"
	"sync/atomic"
)

// Lifecycle reports whether the producer is still running. It flips from
// running to finished exactly once and never back.
type Lifecycle struct {
	finished atomic.Bool
	once     sync.Once
	done     chan struct{}
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{done: make(chan struct{})}
}

// Finish marks the producer as finished. It returns true only for the call
// that performed the transition.
func (l *Lifecycle) Finish() bool {
	performed := false
	l.once.Do(func() {
		l.finished.Store(true)
		close(l.done)
		performed = true
	})
	return performed
}

func (l *Lifecycle) Finished() bool {
	return l.finished.Load()
}

// Done is closed by Finish.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}
