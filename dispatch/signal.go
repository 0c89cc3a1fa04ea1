package dispatch

import (
	"slices"
	"sync"
)

// Signal fans a value out to multiple listeners. Listeners are called in
// subscription order, synchronously, from the goroutine that emits.
type Signal[T any] struct {
	mutex     sync.RWMutex
	nextID    uint64
	listeners map[uint64]func(T)
}

// Subscribe registers a listener. The returned function unsubscribes it.
func (s *Signal[T]) Subscribe(l func(T)) (cancel func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.listeners == nil {
		s.listeners = make(map[uint64]func(T))
	}

	s.nextID++
	id := s.nextID
	s.listeners[id] = l

	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		delete(s.listeners, id)
	}
}

func (s *Signal[T]) Emit(v T) {
	for _, l := range s.snapshot() {
		l(v)
	}
}

// Func returns a zero argument function that emits v. It is meant to be
// assigned to single slot callbacks.
func (s *Signal[T]) Func(v func() T) func() {
	return func() {
		s.Emit(v())
	}
}

func (s *Signal[T]) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.listeners)
}

func (s *Signal[T]) snapshot() []func(T) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		keys = append(keys, id)
	}
	slices.Sort(keys)

	listeners := make([]func(T), len(keys))
	for i, id := range keys {
		listeners[i] = s.listeners[id]
	}
	return listeners
}
