package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Defaults(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	s := NewSession(store)

	mode, err := s.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultMode, mode)

	packs, err := s.ActivePacks(ctx)
	require.NoError(t, err)
	assert.Empty(t, packs)
	assert.NotNil(t, packs)

	on, err := s.OpenAIEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	// defaults are written on first access
	v, ok, err := store.Get(ctx, KeyMode)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, DefaultMode, v)
}

func TestSession_Packs(t *testing.T) {
	ctx := context.Background()
	s := NewSession(NewMemory())

	_, err := s.AddPack(ctx, "legal_prompting")
	require.NoError(t, err)
	_, err = s.AddPack(ctx, "agentic_uiux")
	require.NoError(t, err)
	packs, err := s.AddPack(ctx, "legal_prompting")
	require.NoError(t, err)
	assert.Equal(t, []string{"legal_prompting", "agentic_uiux"}, packs)

	packs, err = s.RemovePack(ctx, "never_added")
	require.NoError(t, err)
	assert.Equal(t, []string{"legal_prompting", "agentic_uiux"}, packs)

	packs, err = s.RemovePack(ctx, "legal_prompting")
	require.NoError(t, err)
	assert.Equal(t, []string{"agentic_uiux"}, packs)

	require.NoError(t, s.ClearPacks(ctx))
	packs, err = s.ActivePacks(ctx)
	require.NoError(t, err)
	assert.Empty(t, packs)
}

func TestSession_CorruptPacksTreatedAsEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Set(ctx, KeyActivePacks, "{not json"))
	s := NewSession(store)

	packs, err := s.ActivePacks(ctx)
	require.NoError(t, err)
	assert.Empty(t, packs)

	packs, err = s.AddPack(ctx, "legal_workflows")
	require.NoError(t, err)
	assert.Equal(t, []string{"legal_workflows"}, packs)
}

func TestSession_ModeAndFlag(t *testing.T) {
	ctx := context.Background()
	s := NewSession(NewMemory())

	require.NoError(t, s.SetMode(ctx, "my custom mode"))
	mode, err := s.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "my custom mode", mode)

	require.NoError(t, s.SetOpenAIEnabled(ctx, true))
	on, err := s.OpenAIEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	raw, _, err := s.Store().Get(ctx, KeyUseOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "1", raw)
}

func TestSession_StorageFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	store.Close()
	s := NewSession(store)

	_, err := s.Mode(ctx)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	_, err = s.AddPack(ctx, "x")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}
