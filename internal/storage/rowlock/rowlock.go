// Package rowlock provides exclusive per-identity locks acquired in a fixed
// global order, so transactions touching several accounts cannot deadlock.
package rowlock

import (
	"context"
	"slices"
	"sync"
)

// Manager hands out identity locks. The zero value is not usable, use New.
type Manager struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// New creates an empty lock manager.
func New() *Manager {
	return &Manager{slots: make(map[string]*slot)}
}

// Set is a group of held locks.
type Set struct {
	m        *Manager
	keys     []string
	released bool
	mu       sync.Mutex
}

// Acquire locks every key in sorted order. Duplicates are ignored.
// It gives up waiting when ctx is done and releases whatever it already holds.
func (m *Manager) Acquire(ctx context.Context, keys ...string) (*Set, error) {
	ordered := slices.Clone(keys)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	held := make([]string, 0, len(ordered))
	for _, key := range ordered {
		s := m.ref(key)
		select {
		case s.ch <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			m.unref(key)
			m.release(held)
			return nil, ctx.Err()
		}
	}

	return &Set{m: m, keys: held}, nil
}

// Contains reports whether key is locked by this set.
func (s *Set) Contains(key string) bool {
	_, found := slices.BinarySearch(s.keys, key)
	return found
}

// Keys returns the locked keys in acquisition order.
func (s *Set) Keys() []string {
	return slices.Clone(s.keys)
}

// Release unlocks the set. Calling it more than once is a no-op.
func (s *Set) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.m.release(s.keys)
}

func (m *Manager) ref(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *Manager) unref(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

func (m *Manager) release(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		m.mu.Lock()
		s := m.slots[keys[i]]
		<-s.ch
		s.refs--
		if s.refs == 0 {
			delete(m.slots, keys[i])
		}
		m.mu.Unlock()
	}
}

// Len returns the number of keys currently locked or waited on.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
