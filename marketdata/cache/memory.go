// Package cache provides key/value stores for the marketdata lookaside
// cache: an in-process LRU, a bbolt file and a redis server.
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrNotFound is returned by Get for keys that are not stored.
var ErrNotFound = errors.New("cache: key not found")

// Memory is an in-process LRU store. It holds at most size entries, the
// least recently used being evicted first, and entries expire after ttl.
// A zero size or ttl disables the bound.
type Memory struct {
	lru *expirable.LRU[string, []byte]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewMemory creates an empty in-process store.
func NewMemory(size int, ttl time.Duration) *Memory {
	if size < 0 {
		size = 0
	}
	m := &Memory{}
	m.lru = expirable.NewLRU[string, []byte](size, func(string, []byte) {
		m.evictions.Add(1)
	}, ttl)
	return m
}

func (m *Memory) lookup(key string) ([]byte, bool) {
	v, ok := m.lru.Get(key)
	if !ok {
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)
	return v, true
}

// Exists reports whether key holds an unexpired value.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.lookup(key)
	return ok, nil
}

// Get returns a copy of the value of key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value under key.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.lru.Add(key, append([]byte(nil), value...))
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	return m.lru.Len()
}

// Stats returns the number of lookups that hit and missed, and the number
// of entries dropped for size or age.
func (m *Memory) Stats() (hits, misses, evictions int64) {
	return m.hits.Load(), m.misses.Load(), m.evictions.Load()
}
