// PicoJarvis - personal automation assistant
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sipeed/picojarvis/pkg/config"
	"github.com/sipeed/picojarvis/pkg/logger"
	"github.com/sipeed/picojarvis/pkg/providers"
	"github.com/sipeed/picojarvis/pkg/tools"
)

// ErrNoFallbackModel is returned when the local model catalog is empty.
var ErrNoFallbackModel = errors.New("no fallback model available")

// Request is one composed prompt plus the session context it was built from.
type Request struct {
	Prompt      string
	Mode        string
	ActivePacks []string
}

type Reply struct {
	Text         string
	UsedFallback bool
	Backend      string
}

// Backend produces a reply for a prompt.
type Backend interface {
	Name() string
	Respond(ctx context.Context, req Request) (*Reply, error)
}

// GenerateBackend is a single non-streaming request to the local inference
// server. It never uses tools and never fails: errors come back as text.
type GenerateBackend struct {
	client  *providers.OllamaClient
	model   string
	timeout time.Duration
}

func NewGenerateBackend(client *providers.OllamaClient, model string, timeout time.Duration) *GenerateBackend {
	return &GenerateBackend{client: client, model: model, timeout: timeout}
}

func (b *GenerateBackend) Name() string { return string(KindGenerate) }

func (b *GenerateBackend) Respond(ctx context.Context, req Request) (*Reply, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	text, err := b.client.Generate(ctx, b.model, req.Prompt)
	if err != nil {
		logger.WarnCF("agent", "Local generation failed", map[string]any{
			"model": b.model,
			"error": err.Error(),
		})
		text = "error: " + err.Error()
	}
	return &Reply{Text: text, Backend: b.Name()}, nil
}

// Stream forwards generation chunks as they arrive, bounded by timeout.
func (b *GenerateBackend) Stream(ctx context.Context, prompt string, timeout time.Duration, onChunk func(string) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return b.client.GenerateStream(ctx, b.model, prompt, onChunk)
}

// ConversationFactory opens a fresh conversation for a profile.
type ConversationFactory func(p Profile, defs []providers.ToolDefinition) Conversation

// NewConversation picks the client for the profile's provider.
func NewConversation(p Profile, defs []providers.ToolDefinition) Conversation {
	cc := providers.ConversationConfig{
		Model:        p.Model,
		Instructions: p.Instructions,
		Tools:        defs,
		MaxTokens:    p.MaxTokens,
	}
	switch {
	case p.Kind == KindHosted && p.Provider == config.HostedAnthropic:
		return providers.NewAnthropicConversation(p.APIKey, p.BaseURL, p.Timeout, cc)
	case p.Kind == KindHosted:
		return providers.NewResponsesConversation(p.APIKey, p.BaseURL, p.Timeout, cc)
	default:
		return providers.NewChatConversation(p.Provider, p.APIKey, p.BaseURL, p.Timeout, cc)
	}
}

// AgentBackend runs the tool loop over a conversation built from its
// profile. Each Respond starts a new conversation.
type AgentBackend struct {
	profile  Profile
	registry *tools.ToolRegistry
	factory  ConversationFactory
}

func NewAgentBackend(p Profile, registry *tools.ToolRegistry, factory ConversationFactory) *AgentBackend {
	if factory == nil {
		factory = NewConversation
	}
	return &AgentBackend{profile: p, registry: registry, factory: factory}
}

func (b *AgentBackend) Name() string { return string(b.profile.Kind) }

func (b *AgentBackend) Profile() Profile { return b.profile }

func (b *AgentBackend) Respond(ctx context.Context, req Request) (*Reply, error) {
	var defs []providers.ToolDefinition
	if b.registry != nil {
		defs = b.registry.Definitions()
	}
	conv := b.factory(b.profile, defs)

	logger.InfoCF("agent", "Starting tool loop", map[string]any{
		"backend":  b.Name(),
		"provider": b.profile.Provider,
		"model":    b.profile.Model,
		"mode":     req.Mode,
		"packs":    req.ActivePacks,
		"tools":    len(defs),
	})

	res, err := RunToolLoop(ctx, LoopConfig{Registry: b.registry, MaxRounds: b.profile.MaxRounds}, conv, req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("%s backend: %w", b.Name(), err)
	}
	return &Reply{Text: res.Text, Backend: b.Name()}, nil
}

// Builder turns profiles into backends sharing one registry and one local
// inference client.
type Builder struct {
	Ollama   *providers.OllamaClient
	Registry *tools.ToolRegistry
	Factory  ConversationFactory
}

func (b *Builder) Build(p Profile) Backend {
	if p.Kind == KindGenerate {
		return NewGenerateBackend(b.Ollama, p.Model, p.Timeout)
	}
	return NewAgentBackend(p, b.Registry, b.Factory)
}

// FallbackModel asks the local server for its catalog and picks the
// highest ranked small model, or the first entry when none is ranked.
func FallbackModel(ctx context.Context, client *providers.OllamaClient) (string, error) {
	models, err := client.Tags(ctx)
	if err != nil {
		return "", fmt.Errorf("list local models: %w", err)
	}
	model, ok := providers.PickSmallModel(models)
	if !ok {
		return "", ErrNoFallbackModel
	}
	return model, nil
}
