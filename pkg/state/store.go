// Package state holds the session key/value settings and the append-only
// event log shared by every command surface.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStorageUnavailable marks any failure of the backing store.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Event is one entry of the append-only event log.
type Event struct {
	ID        int64
	Timestamp time.Time
	Type      string
	Payload   string
}

// UpdateFunc computes the new value for a key from its current value.
// ok is false when the key has never been written.
type UpdateFunc func(current string, ok bool) (string, error)

// Store is the durable key/value and event log backend.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Update performs an atomic read-modify-write of one key and returns the
	// stored value.
	Update(ctx context.Context, key string, fn UpdateFunc) (string, error)
	AppendEvent(ctx context.Context, eventType, payload string) error
	// Events returns the newest limit events in insertion order. A limit of
	// zero or less returns all of them.
	Events(ctx context.Context, limit int) ([]Event, error)
	Ping(ctx context.Context) error
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

var errClosed = errors.New("store closed")
