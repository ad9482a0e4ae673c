package state

import (
	"context"
	"encoding/json"
	"slices"
)

const (
	KeyMode        = "mode"
	KeyActivePacks = "active_packs"
	KeyUseOpenAI   = "use_openai"

	DefaultMode = "general"
)

// Session exposes the typed session settings stored in a Store. Missing keys
// are initialised with their defaults on first read.
type Session struct {
	store Store
}

func NewSession(store Store) *Session {
	return &Session{store: store}
}

func (s *Session) Store() Store {
	return s.store
}

func (s *Session) Mode(ctx context.Context) (string, error) {
	return s.getOrInit(ctx, KeyMode, DefaultMode)
}

func (s *Session) SetMode(ctx context.Context, mode string) error {
	return s.store.Set(ctx, KeyMode, mode)
}

// ActivePacks returns the enabled pack names in insertion order.
func (s *Session) ActivePacks(ctx context.Context) ([]string, error) {
	raw, err := s.getOrInit(ctx, KeyActivePacks, "[]")
	if err != nil {
		return nil, err
	}
	return decodePacks(raw), nil
}

// AddPack appends name unless it is already active.
func (s *Session) AddPack(ctx context.Context, name string) ([]string, error) {
	return s.updatePacks(ctx, func(packs []string) []string {
		if slices.Contains(packs, name) {
			return packs
		}
		return append(packs, name)
	})
}

// RemovePack drops name; removing an inactive pack is a no-op.
func (s *Session) RemovePack(ctx context.Context, name string) ([]string, error) {
	return s.updatePacks(ctx, func(packs []string) []string {
		return slices.DeleteFunc(packs, func(p string) bool { return p == name })
	})
}

func (s *Session) ClearPacks(ctx context.Context) error {
	return s.store.Set(ctx, KeyActivePacks, "[]")
}

func (s *Session) OpenAIEnabled(ctx context.Context) (bool, error) {
	raw, err := s.getOrInit(ctx, KeyUseOpenAI, "0")
	if err != nil {
		return false, err
	}
	return raw == "1", nil
}

func (s *Session) SetOpenAIEnabled(ctx context.Context, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	return s.store.Set(ctx, KeyUseOpenAI, value)
}

func (s *Session) updatePacks(ctx context.Context, fn func([]string) []string) ([]string, error) {
	var result []string
	_, err := s.store.Update(ctx, KeyActivePacks, func(current string, ok bool) (string, error) {
		packs := []string{}
		if ok {
			packs = decodePacks(current)
		}
		result = fn(packs)
		if result == nil {
			result = []string{}
		}
		data, err := json.Marshal(result)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Session) getOrInit(ctx context.Context, key, def string) (string, error) {
	value, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if ok {
		return value, nil
	}
	return s.store.Update(ctx, key, func(current string, ok bool) (string, error) {
		if ok {
			return current, nil
		}
		return def, nil
	})
}

// decodePacks tolerates a corrupt value by treating it as empty.
func decodePacks(raw string) []string {
	var packs []string
	if err := json.Unmarshal([]byte(raw), &packs); err != nil || packs == nil {
		return []string{}
	}
	return packs
}
