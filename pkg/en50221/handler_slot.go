package en50221

import "sync"

// handlerSlot holds the application handler of one resource event.
// The lock covers only the handler value: callers take a snapshot with load and
// invoke it after the lock is released.
type handlerSlot[T any] struct {
	mu sync.RWMutex
	h  T
}

func (s *handlerSlot[T]) store(h T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h = h
}

func (s *handlerSlot[T]) load() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.h
}
