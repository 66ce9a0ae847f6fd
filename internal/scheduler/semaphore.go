package scheduler

import "sync"

// Semaphore is a non-blocking counting semaphore. The scheduler skips a
// job when its category is saturated rather than queueing it, so only a
// try-acquire is offered.
type Semaphore struct {
	mu    sync.Mutex
	inUse int
	limit int
}

// NewSemaphore creates a semaphore with the given capacity. Capacities
// below 1 are clamped to 1.
func NewSemaphore(capacity int) *Semaphore {
	if capacity < 1 {
		capacity = 1
	}
	return &Semaphore{limit: capacity}
}

// TryAcquire takes a slot if one is free and reports whether it did.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inUse >= s.limit {
		return false
	}
	s.inUse++
	return true
}

// Release frees a slot taken by a successful TryAcquire.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inUse > 0 {
		s.inUse--
	}
}

// Available returns the number of free slots.
func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit - s.inUse
}
