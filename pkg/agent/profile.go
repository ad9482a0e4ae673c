package agent

import (
	"time"

	"github.com/sipeed/picojarvis/pkg/config"
	"github.com/sipeed/picojarvis/pkg/providers"
)

// Kind names a backend variant.
type Kind string

const (
	KindGenerate   Kind = "local_generate"
	KindHosted     Kind = "hosted_agentic"
	KindSelfHosted Kind = "autonomous_agent"
)

// ProviderOllama marks conversations against the local inference server.
const ProviderOllama = "ollama"

// Profile is everything needed to build one backend. It is computed per
// command and passed by value; nothing global is reconfigured.
type Profile struct {
	Kind         Kind
	Provider     string
	Model        string
	APIKey       string
	BaseURL      string
	Instructions string
	Headless     bool
	MaxRounds    int
	MaxTokens    int
	Timeout      time.Duration
}

// Agentic reports whether the profile runs the tool loop.
func (p Profile) Agentic() bool {
	return p.Kind == KindHosted || p.Kind == KindSelfHosted
}

const hostedPreamble = "You are Jarvis, an autonomous assistant with direct access to this computer. " +
	"Work independently: plan the steps, act with the tools, verify the result, and only ask " +
	"the user when you are truly blocked."

const selfHostedPreamble = "You are Jarvis, running on a local model with access to this computer. " +
	"Look before you act: call screenshot and inspect the screen before any mouse or keyboard " +
	"action, then proceed one tool call at a time and report what you did."

const headlessNote = "No display is attached. Use only the file and shell tools."

func preamble(base string, headless bool) string {
	if headless {
		return base + "\n" + headlessNote
	}
	return base
}

// Resolve picks the backend for one command. Generate-only applies when the
// configured backend is local and the session has not opted into the
// hosted API. Otherwise the hosted agent is used when its credential is
// present, else the self-hosted agent.
func Resolve(cfg *config.Config, useOpenAI bool) Profile {
	if cfg.LocalOnly() && !useOpenAI {
		return Profile{
			Kind:     KindGenerate,
			Provider: ProviderOllama,
			Model:    cfg.OllamaModel,
			BaseURL:  cfg.OllamaBase,
			Timeout:  cfg.GenerateTimeout,
		}
	}
	if cfg.HostedAPIKey() != "" {
		return HostedProfile(cfg)
	}
	return SelfHostedProfile(cfg, cfg.OllamaChatModel)
}

func HostedProfile(cfg *config.Config) Profile {
	p := Profile{
		Kind:         KindHosted,
		Provider:     cfg.HostedProvider,
		Model:        cfg.HostedModel(),
		APIKey:       cfg.HostedAPIKey(),
		Instructions: preamble(hostedPreamble, bool(cfg.Headless)),
		Headless:     bool(cfg.Headless),
		MaxRounds:    cfg.MaxToolRounds,
		MaxTokens:    cfg.MaxTokens,
		Timeout:      cfg.BackendTimeout,
	}
	if cfg.HostedProvider == config.HostedAnthropic {
		p.BaseURL = cfg.AnthropicBaseURL
	} else {
		p.BaseURL = cfg.OpenAIBaseURL
	}
	return p
}

// SelfHostedProfile targets the OpenAI-compatible endpoint of the local
// inference server with the given model.
func SelfHostedProfile(cfg *config.Config, model string) Profile {
	return Profile{
		Kind:         KindSelfHosted,
		Provider:     ProviderOllama,
		Model:        model,
		BaseURL:      providers.NewOllamaClient(cfg.OllamaBase).OpenAIBaseURL(),
		Instructions: preamble(selfHostedPreamble, bool(cfg.Headless)),
		Headless:     bool(cfg.Headless),
		MaxRounds:    cfg.MaxToolRounds,
		MaxTokens:    cfg.MaxTokens,
		Timeout:      cfg.BackendTimeout,
	}
}
