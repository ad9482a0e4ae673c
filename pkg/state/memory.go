package state

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	updatedAt time.Time
}

// MemoryStore is a process-local Store used by tests and --memory runs.
type MemoryStore struct {
	mu     sync.Mutex
	kv     map[string]memEntry
	events []Event
	closed bool
}

func NewMemory() *MemoryStore {
	return &MemoryStore{kv: make(map[string]memEntry)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, unavailable("get", errClosed)
	}
	e, ok := m.kv[key]
	return e.value, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return unavailable("set", errClosed)
	}
	m.kv[key] = memEntry{value: value, updatedAt: time.Now()}
	return nil
}

func (m *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", unavailable("update", errClosed)
	}
	current, ok := m.kv[key]
	next, err := fn(current.value, ok)
	if err != nil {
		return "", err
	}
	m.kv[key] = memEntry{value: next, updatedAt: time.Now()}
	return next, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, eventType, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return unavailable("append event", errClosed)
	}
	m.events = append(m.events, Event{
		ID:        int64(len(m.events) + 1),
		Timestamp: time.Now(),
		Type:      eventType,
		Payload:   payload,
	})
	return nil
}

func (m *MemoryStore) Events(_ context.Context, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, unavailable("events", errClosed)
	}
	src := m.events
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]Event, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return unavailable("ping", errClosed)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
