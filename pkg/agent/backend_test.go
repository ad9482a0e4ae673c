package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/picojarvis/pkg/config"
	"github.com/sipeed/picojarvis/pkg/providers"
	"github.com/sipeed/picojarvis/pkg/tools"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		backend   string
		provider  string
		openaiKey string
		claudeKey string
		useOpenAI bool
		kind      Kind
		model     string
	}{
		{name: "local only", backend: "ollama", kind: KindGenerate, model: "llama3.2"},
		{name: "local alias", backend: "llm", openaiKey: "sk", kind: KindGenerate, model: "llama3.2"},
		{name: "session opt in with key", backend: "ollama", openaiKey: "sk", useOpenAI: true, kind: KindHosted, model: "gpt-4o"},
		{name: "session opt in without key", backend: "local", useOpenAI: true, kind: KindSelfHosted, model: "gemma:2b"},
		{name: "agentic without key", backend: "interpreter", kind: KindSelfHosted, model: "gemma:2b"},
		{name: "agentic hosted", backend: "interpreter", openaiKey: "sk", kind: KindHosted, model: "gpt-4o"},
		{name: "anthropic hosted", backend: "agent", provider: config.HostedAnthropic, claudeKey: "ak", kind: KindHosted, model: "claude-sonnet-4-5"},
		{name: "anthropic without key", backend: "agent", provider: config.HostedAnthropic, openaiKey: "sk", kind: KindSelfHosted, model: "gemma:2b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Backend = tt.backend
			if tt.provider != "" {
				cfg.HostedProvider = tt.provider
			}
			cfg.OpenAIAPIKey = tt.openaiKey
			cfg.AnthropicAPIKey = tt.claudeKey

			p := Resolve(cfg, tt.useOpenAI)
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.model, p.Model)
			assert.Equal(t, tt.kind != KindGenerate, p.Agentic())
		})
	}
}

func TestProfiles(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OpenAIAPIKey = "sk"
	cfg.OllamaBase = "http://box:11434/"
	cfg.MaxToolRounds = 7

	hosted := HostedProfile(cfg)
	self := SelfHostedProfile(cfg, "phi3:mini")

	assert.Equal(t, "sk", hosted.APIKey)
	assert.Equal(t, 7, hosted.MaxRounds)
	assert.Equal(t, 7, self.MaxRounds)
	assert.Equal(t, "http://box:11434/v1", self.BaseURL)
	assert.Equal(t, ProviderOllama, self.Provider)
	assert.Empty(t, self.APIKey)
	assert.NotEqual(t, hosted.Instructions, self.Instructions)
	assert.Contains(t, self.Instructions, "screenshot")
	assert.NotContains(t, hosted.Instructions, headlessNote)

	cfg.Headless = true
	assert.True(t, SelfHostedProfile(cfg, "m").Headless)
	assert.Contains(t, HostedProfile(cfg).Instructions, headlessNote)
}

func TestNewConversation_PicksClient(t *testing.T) {
	assert.IsType(t, &providers.ResponsesConversation{}, NewConversation(Profile{Kind: KindHosted, Provider: config.HostedOpenAI}, nil))
	assert.IsType(t, &providers.AnthropicConversation{}, NewConversation(Profile{Kind: KindHosted, Provider: config.HostedAnthropic}, nil))
	assert.IsType(t, &providers.ChatConversation{}, NewConversation(Profile{Kind: KindSelfHosted, Provider: ProviderOllama}, nil))
}

func TestGenerateBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"local answer","done":true}`))
	}))
	defer server.Close()

	b := NewGenerateBackend(providers.NewOllamaClient(server.URL), "llama3.2", time.Second)
	reply, err := b.Respond(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "local answer", reply.Text)
	assert.Equal(t, string(KindGenerate), reply.Backend)
	assert.False(t, reply.UsedFallback)
}

func TestGenerateBackend_ErrorsBecomeText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	b := NewGenerateBackend(providers.NewOllamaClient(server.URL), "llama3.2", 50*time.Millisecond)
	reply, err := b.Respond(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply.Text, "error: "), reply.Text)

	unreachable := httptest.NewServer(http.NotFoundHandler())
	url := unreachable.URL
	unreachable.Close()
	reply, err = NewGenerateBackend(providers.NewOllamaClient(url), "m", time.Second).Respond(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply.Text, "error: "), reply.Text)
}

func TestGenerateBackend_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{\"response\":\"a\"}\n{\"response\":\"b\",\"done\":true}\n"))
	}))
	defer server.Close()

	var sb strings.Builder
	err := NewGenerateBackend(providers.NewOllamaClient(server.URL), "m", time.Second).
		Stream(context.Background(), "p", time.Second, func(s string) error {
			sb.WriteString(s)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ab", sb.String())
}

func TestAgentBackend_RunsLoopWithRegistryTools(t *testing.T) {
	registry := tools.NewToolRegistry(0)
	registry.Register(&echoTool{name: "echo"})

	var gotProfile Profile
	var gotDefs []providers.ToolDefinition
	conv := &scriptedConversation{turns: []*providers.Turn{
		{Calls: []providers.ToolCall{call("1", "echo", "x")}},
		{Text: "answer"},
	}}
	factory := func(p Profile, defs []providers.ToolDefinition) Conversation {
		gotProfile = p
		gotDefs = defs
		return conv
	}

	p := Profile{Kind: KindHosted, Provider: "openai", Model: "gpt-4o", MaxRounds: 2}
	b := NewAgentBackend(p, registry, factory)
	reply, err := b.Respond(context.Background(), Request{Prompt: "do it", Mode: "general"})
	require.NoError(t, err)
	assert.Equal(t, "answer", reply.Text)
	assert.Equal(t, string(KindHosted), reply.Backend)
	assert.Equal(t, p, gotProfile)
	require.Len(t, gotDefs, 1)
	assert.Equal(t, "echo", gotDefs[0].Function.Name)
	assert.Equal(t, "echo:x", conv.results[1][0].Output)
}

func TestAgentBackend_PropagatesQuotaError(t *testing.T) {
	quota := &providers.FailoverError{Reason: providers.FailoverBilling, Provider: "openai"}
	factory := func(Profile, []providers.ToolDefinition) Conversation {
		return &scriptedConversation{err: quota}
	}
	b := NewAgentBackend(Profile{Kind: KindHosted}, nil, factory)

	_, err := b.Respond(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, providers.IsQuotaError(err))
}

func TestBuilder(t *testing.T) {
	b := &Builder{Ollama: providers.NewOllamaClient(""), Registry: tools.NewToolRegistry(0)}
	assert.IsType(t, &GenerateBackend{}, b.Build(Profile{Kind: KindGenerate}))
	agent := b.Build(Profile{Kind: KindSelfHosted, Model: "m"})
	require.IsType(t, &AgentBackend{}, agent)
	assert.Equal(t, "m", agent.(*AgentBackend).Profile().Model)
}

func TestFallbackModel(t *testing.T) {
	catalog := `{"models":[{"name":"mistral"},{"name":"phi3:mini"},{"name":"llama3.2:latest"}]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(catalog))
	}))
	defer server.Close()
	client := providers.NewOllamaClient(server.URL)

	model, err := FallbackModel(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, "phi3:mini", model)

	catalog = `{"models":[{"name":"mistral"}]}`
	model, err = FallbackModel(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, "mistral", model)

	catalog = `{"models":[]}`
	_, err = FallbackModel(context.Background(), client)
	assert.ErrorIs(t, err, ErrNoFallbackModel)
}

func TestFallbackModel_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := FallbackModel(context.Background(), providers.NewOllamaClient(url))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoFallbackModel))
}
