package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemory(),
	}
}

func TestStore_GetSet(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "mode")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "mode", "general"))
			require.NoError(t, s.Set(ctx, "mode", "legal_research"))

			v, ok, err := s.Get(ctx, "mode")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "legal_research", v)
		})
	}
}

func TestStore_UpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Update(ctx, "counter", func(cur string, ok bool) (string, error) {
						n := 0
						if ok {
							n, _ = strconv.Atoi(cur)
						}
						return strconv.Itoa(n + 1), nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			v, _, err := s.Get(ctx, "counter")
			require.NoError(t, err)
			assert.Equal(t, "20", v)
		})
	}
}

func TestStore_UpdateFuncErrorLeavesValue(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "k", "v1"))
			_, err := s.Update(ctx, "k", func(string, bool) (string, error) { return "", boom })
			assert.ErrorIs(t, err, boom)
			assert.NotErrorIs(t, err, ErrStorageUnavailable)

			v, _, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v1", v)
		})
	}
}

func TestStore_Events(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				require.NoError(t, s.AppendEvent(ctx, "command", fmt.Sprintf("c%d", i)))
			}

			all, err := s.Events(ctx, 0)
			require.NoError(t, err)
			require.Len(t, all, 5)
			assert.Equal(t, "c0", all[0].Payload)
			assert.Equal(t, "command", all[0].Type)

			last, err := s.Events(ctx, 2)
			require.NoError(t, err)
			require.Len(t, last, 2)
			assert.Equal(t, "c3", last[0].Payload)
			assert.Equal(t, "c4", last[1].Payload)
			assert.Less(t, last[0].ID, last[1].ID)
		})
	}
}

func TestStore_ClosedIsUnavailable(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Close())

			_, _, err := s.Get(ctx, "mode")
			assert.ErrorIs(t, err, ErrStorageUnavailable)
			assert.ErrorIs(t, s.Set(ctx, "mode", "x"), ErrStorageUnavailable)
			assert.ErrorIs(t, s.AppendEvent(ctx, "command", "x"), ErrStorageUnavailable)
			assert.ErrorIs(t, s.Ping(ctx), ErrStorageUnavailable)
			_, err = s.Update(ctx, "k", func(string, bool) (string, error) { return "", nil })
			assert.ErrorIs(t, err, ErrStorageUnavailable)
			_, err = s.Events(ctx, 1)
			assert.ErrorIs(t, err, ErrStorageUnavailable)
		})
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "mode", "prompt_builder"))
	require.NoError(t, s.AppendEvent(ctx, "command", "hello"))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, "mode")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "prompt_builder", v)

	events, err := s.Events(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0].Payload)
}
