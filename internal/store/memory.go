package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	list      []string
	set       map[string]struct{}
	expiresAt time.Time
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process Store with TTL support. It backs the engine
// in standalone mode (no Redis configured) and is the test substrate.
type Memory struct {
	mu   sync.Mutex
	data map[string]*memEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]*memEntry)}
}

// live returns the entry at key, dropping it first if expired.
func (s *Memory) live(key string) *memEntry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if e.expired(time.Now()) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *Memory) upsert(key string) *memEntry {
	e := s.live(key)
	if e == nil {
		e = &memEntry{}
		s.data[key] = e
	}
	return e
}

func (s *Memory) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (s *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

func (s *Memory) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *Memory) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	var current int64
	if e != nil {
		current, _ = strconv.ParseInt(e.value, 10, 64)
	} else {
		e = &memEntry{}
		s.data[key] = e
	}
	current += delta
	e.value = strconv.FormatInt(current, 10)
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	return current, nil
}

func (s *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.live(key); e != nil {
		e.expiresAt = time.Now().Add(ttl)
	}
	return nil
}

func (s *Memory) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(key) != nil, nil
}

func (s *Memory) ListPush(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.upsert(key)
	e.list = append(e.list, value)
	return nil
}

func (s *Memory) ListTrim(ctx context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return nil
	}
	n := int64(len(e.list))
	lo, hi := normalizeRange(start, stop, n)
	if lo > hi {
		e.list = nil
		return nil
	}
	e.list = e.list[lo : hi+1]
	return nil
}

func (s *Memory) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return nil, nil
	}
	n := int64(len(e.list))
	lo, hi := normalizeRange(start, stop, n)
	if lo > hi {
		return nil, nil
	}
	out := make([]string, hi-lo+1)
	copy(out, e.list[lo:hi+1])
	return out, nil
}

func (s *Memory) SetAdd(ctx context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.upsert(key)
	if e.set == nil {
		e.set = make(map[string]struct{})
	}
	e.set[member] = struct{}{}
	return nil
}

func (s *Memory) SetRemove(ctx context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.live(key); e != nil && e.set != nil {
		delete(e.set, member)
	}
	return nil
}

func (s *Memory) SetMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return nil, nil
	}
	out := make([]string, 0, len(e.set))
	for m := range e.set {
		out = append(out, m)
	}
	return out, nil
}

func (s *Memory) Close() error {
	return nil
}

// normalizeRange maps redis-style inclusive indexes (negative counts
// from the tail) onto [0, n) slice bounds.
func normalizeRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}
