package scheduler

import "context"

// Semaphore bounds concurrent sub-tasks within a single stage's work
// function.
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore builds a Semaphore allowing up to n concurrent holders.
func NewSemaphore(n int) *Semaphore {
	if n < 1 {
		n = 1
	}
	return &Semaphore{tokens: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (s *Semaphore) Release() {
	<-s.tokens
}
