// Package store defines the data-store contract consumed by root bindings
// and ships a small in-memory implementation.
package store

import (
	"maps"
	"sort"
	"sync"
)

// Store is a mutable data source that notifies subscribers after changes.
type Store interface {
	// GetData returns a snapshot of the current data. The snapshot must not
	// change after it is returned.
	GetData() any
	// Subscribe registers a change callback and returns a function that
	// removes it.
	Subscribe(callback func()) (unsubscribe func())
}

// Data is the snapshot type produced by Memory.
type Data map[string]any

// Memory is a flat key/value store. Each mutation notifies subscribers
// synchronously, on the calling goroutine, unless it happens inside Batch or
// Silently.
type Memory struct {
	mu        sync.Mutex
	data      Data
	version   uint64
	listeners map[int]func()
	nextID    int
	batching  int
	changed   bool
}

// NewMemory creates a store seeded with a copy of initial.
func NewMemory(initial Data) *Memory {
	data := make(Data, len(initial))
	maps.Copy(data, initial)
	return &Memory{
		data:      data,
		listeners: make(map[int]func()),
	}
}

// GetData returns a copy of the current data as a Data value.
func (m *Memory) GetData() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.data)
}

// Get returns the value stored under key.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// Version increments on every applied mutation.
func (m *Memory) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Set stores value under key and notifies subscribers.
func (m *Memory) Set(key string, value any) {
	m.mutate(func(d Data) { d[key] = value })
}

// Delete removes key and notifies subscribers if it was present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	_, ok := m.data[key]
	m.mu.Unlock()
	if ok {
		m.mutate(func(d Data) { delete(d, key) })
	}
}

// Update replaces the value under key with fn(old) and notifies subscribers.
func (m *Memory) Update(key string, fn func(old any) any) {
	m.mutate(func(d Data) { d[key] = fn(d[key]) })
}

// Silently applies fn without notifying anyone.
func (m *Memory) Silently(fn func(d Data)) {
	m.mu.Lock()
	fn(m.data)
	m.version++
	m.mu.Unlock()
}

// Batch applies every mutation made by fn and notifies subscribers once at
// the end, if anything changed.
func (m *Memory) Batch(fn func()) {
	m.mu.Lock()
	m.batching++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.batching--
		notify := m.batching == 0 && m.changed
		if notify {
			m.changed = false
		}
		m.mu.Unlock()
		if notify {
			m.notify()
		}
	}()
	fn()
}

func (m *Memory) mutate(fn func(d Data)) {
	m.mu.Lock()
	fn(m.data)
	m.version++
	if m.batching > 0 {
		m.changed = true
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.notify()
}

// Subscribe registers callback for change notifications.
func (m *Memory) Subscribe(callback func()) func() {
	if callback == nil {
		return func() {}
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = callback
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Subscribers returns the number of registered callbacks.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// notify calls listeners in subscription order outside the lock, so they
// may read or mutate the store.
func (m *Memory) notify() {
	m.mu.Lock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	callbacks := make([]func(), 0, len(ids))
	for _, id := range ids {
		callbacks = append(callbacks, m.listeners[id])
	}
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}
