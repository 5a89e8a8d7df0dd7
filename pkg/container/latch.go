package container

import (
	"context"
	"sync"
	"time"
)

// Latch is a single-use completion signal. One producer calls Signal once
// the response is final; any number of goroutines can wait on it.
type Latch struct {
	once sync.Once
	done chan struct{}
}

// NewLatch creates a latch in the pending state
func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Signal releases every waiter. Calling it again is a no-op.
func (l *Latch) Signal() {
	l.once.Do(func() {
		close(l.done)
	})
}

// Signaled reports whether Signal has been called
func (l *Latch) Signaled() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the latch is signaled
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the latch is signaled or the timeout elapses.
// It returns false on timeout. A non-positive timeout waits forever.
func (l *Latch) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-l.done
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.done:
		return true
	case <-timer.C:
		return l.Signaled()
	}
}

// WaitContext blocks until the latch is signaled or ctx is done
func (l *Latch) WaitContext(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		// Prefer the signal when both are ready
		if l.Signaled() {
			return nil
		}
		return ctx.Err()
	}
}
