// Copyright 2025 The Mageos Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package oncemap provides a concurrent map whose values are computed at
// most once per key by a single flight of work, with any number of waiters.
package oncemap

import (
	"context"
	"errors"
	"sync"
)

// ErrUnregistered is returned by Wait for a key nobody ever registered.
// Waiting can only be woken by the registrant's Fill or Fail, so such a wait
// would block forever; treating it as an error surfaces the driver bug
// immediately.
var ErrUnregistered = errors.New("oncemap: wait on unregistered key")

type state int

const (
	stateInFlight state = iota
	stateReady
	stateFailed
)

type entry[V any] struct {
	done  chan struct{} // closed on Fill or Fail
	state state
	value V
	err   error
}

// Map is a single-flight memoized map. A key is in one of four states:
// absent, in flight, ready or failed. Register claims an absent key for
// fetching; Fill and Fail complete the flight. Failures are delivered to the
// waiters of that flight but, unless marked fatal, are not cached: the key
// returns to absent so a later Register may retry.
type Map[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
}

// New returns an empty Map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{entries: make(map[K]*entry[V])}
}

// Register claims k for fetching. It reports whether the caller became the
// fetcher; false means the key is already in flight, ready or failed, and
// the caller should Wait instead.
func (m *Map[K, V]) Register(k K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[k]; ok {
		return false
	}
	m.entries[k] = &entry[V]{done: make(chan struct{})}
	return true
}

// Fill completes k's flight with a value, waking all waiters. The caller
// must have registered k.
func (m *Map[K, V]) Fill(k K, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[k]
	if !ok || e.state != stateInFlight {
		return
	}
	e.value = v
	e.state = stateReady
	close(e.done)
}

// Fail completes k's flight with an error, waking all waiters. Unless fatal
// is set the key is forgotten afterwards, so a later Register restarts the
// fetch rather than replaying a transient failure forever.
func (m *Map[K, V]) Fail(k K, err error, fatal bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[k]
	if !ok || e.state != stateInFlight {
		return
	}
	e.err = err
	e.state = stateFailed
	close(e.done)
	if !fatal {
		delete(m.entries, k)
	}
}

// Get returns k's value if it is ready, without blocking.
func (m *Map[K, V]) Get(k K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[k]; ok && e.state == stateReady {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Wait blocks until k's flight completes and returns its outcome. Waiting on
// a key that was never registered returns ErrUnregistered rather than
// blocking forever.
func (m *Map[K, V]) Wait(ctx context.Context, k K) (V, error) {
	m.mu.Lock()
	e, ok := m.entries[k]
	m.mu.Unlock()
	var zero V
	if !ok {
		return zero, ErrUnregistered
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	// The entry outcome is immutable once done is closed.
	if e.state == stateFailed {
		return zero, e.err
	}
	return e.value, nil
}

// Set is a concurrent set of comparable values.
type Set[K comparable] struct {
	mu sync.RWMutex
	m  map[K]struct{}
}

// NewSet returns an empty Set.
func NewSet[K comparable]() *Set[K] {
	return &Set[K]{m: make(map[K]struct{})}
}

// Add inserts k.
func (s *Set[K]) Add(k K) {
	s.mu.Lock()
	s.m[k] = struct{}{}
	s.mu.Unlock()
}

// Contains reports whether k was added.
func (s *Set[K]) Contains(k K) bool {
	s.mu.RLock()
	_, ok := s.m[k]
	s.mu.RUnlock()
	return ok
}

// Len returns the number of values added.
func (s *Set[K]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
