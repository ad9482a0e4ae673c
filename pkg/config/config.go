// Package config loads jarvis settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	EnvFile = "JARVIS_ENV_FILE"

	HostedOpenAI    = "openai"
	HostedAnthropic = "anthropic"
)

// Flag is a boolean that also accepts on/off and yes/no.
type Flag bool

func (f *Flag) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "1", "true", "yes", "on":
		*f = true
	case "", "0", "false", "no", "off":
		*f = false
	default:
		return fmt.Errorf("invalid flag value %q", string(text))
	}
	return nil
}

// Config holds all runtime settings.
type Config struct {
	DataDir  string `env:"JARVIS_DATA_DIR"`
	MemoryDB string `env:"JARVIS_MEMORY_DB"`
	LogFile  string `env:"JARVIS_LOG_FILE"`
	Debug    Flag   `env:"JARVIS_DEBUG"`

	ServerHost      string        `env:"JARVIS_SERVER_HOST"`
	ServerPort      int           `env:"JARVIS_SERVER_PORT"`
	UIHost          string        `env:"JARVIS_UI_HOST"`
	UIPort          int           `env:"JARVIS_UI_PORT"`
	ConnIdleTimeout time.Duration `env:"JARVIS_CONN_IDLE_TIMEOUT"`
	HTTPRatePerSec  float64       `env:"JARVIS_HTTP_RATE_PER_SEC"`

	Backend        string `env:"JARVIS_BACKEND"`
	HostedProvider string `env:"JARVIS_HOSTED_PROVIDER"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"JARVIS_OPENAI_MODEL"`

	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string `env:"ANTHROPIC_BASE_URL"`
	AnthropicModel   string `env:"JARVIS_ANTHROPIC_MODEL"`
	MaxTokens        int    `env:"JARVIS_MAX_TOKENS"`

	OllamaBase      string `env:"JARVIS_OLLAMA_BASE"`
	OllamaModel     string `env:"JARVIS_OLLAMA_MODEL"`
	OllamaChatModel string `env:"JARVIS_OLLAMA_CHAT_MODEL"`

	GenerateTimeout    time.Duration `env:"JARVIS_GENERATE_TIMEOUT"`
	InteractiveTimeout time.Duration `env:"JARVIS_INTERACTIVE_TIMEOUT"`
	BackendTimeout     time.Duration `env:"JARVIS_BACKEND_TIMEOUT"`
	ToolTimeout        time.Duration `env:"JARVIS_TOOL_TIMEOUT"`
	MaxToolRounds      int           `env:"JARVIS_MAX_TOOL_ROUNDS"`

	AllowShell Flag   `env:"JARVIS_ALLOW_SHELL"`
	Headless   Flag   `env:"JARVIS_HEADLESS"`
	PacksFile  string `env:"JARVIS_PACKS_FILE"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		DataDir:            "data",
		ServerHost:         "127.0.0.1",
		ServerPort:         8123,
		UIHost:             "127.0.0.1",
		UIPort:             8333,
		ConnIdleTimeout:    5 * time.Minute,
		Backend:            "ollama",
		HostedProvider:     HostedOpenAI,
		OpenAIModel:        "gpt-4o",
		AnthropicModel:     "claude-sonnet-4-5",
		MaxTokens:          4096,
		OllamaBase:         "http://localhost:11434",
		OllamaModel:        "llama3.2",
		OllamaChatModel:    "gemma:2b",
		GenerateTimeout:    30 * time.Second,
		InteractiveTimeout: 120 * time.Second,
		BackendTimeout:     120 * time.Second,
		ToolTimeout:        120 * time.Second,
		MaxToolRounds:      24,
	}
}

// Load reads the .env file (if any) and then the process environment on top
// of the defaults. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.HostedProvider = strings.ToLower(strings.TrimSpace(cfg.HostedProvider))
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadDotEnv() error {
	path := os.Getenv(EnvFile)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("JARVIS_DATA_DIR cannot be empty")
	}
	if err := validPort("JARVIS_SERVER_PORT", c.ServerPort); err != nil {
		return err
	}
	if err := validPort("JARVIS_UI_PORT", c.UIPort); err != nil {
		return err
	}
	if c.Backend == "" {
		return fmt.Errorf("JARVIS_BACKEND cannot be empty")
	}
	switch c.HostedProvider {
	case HostedOpenAI, HostedAnthropic:
	default:
		return fmt.Errorf("JARVIS_HOSTED_PROVIDER must be %q or %q, got %q", HostedOpenAI, HostedAnthropic, c.HostedProvider)
	}
	if c.OllamaBase == "" {
		return fmt.Errorf("JARVIS_OLLAMA_BASE cannot be empty")
	}
	if c.MaxToolRounds <= 0 {
		return fmt.Errorf("JARVIS_MAX_TOOL_ROUNDS must be > 0")
	}
	if c.GenerateTimeout <= 0 || c.InteractiveTimeout <= 0 || c.BackendTimeout <= 0 || c.ToolTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0")
	}
	if c.HTTPRatePerSec < 0 {
		return fmt.Errorf("JARVIS_HTTP_RATE_PER_SEC must be >= 0")
	}
	return nil
}

func validPort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be in 1..65535, got %d", name, port)
	}
	return nil
}

// MemoryDBPath is the SQLite file holding session state and events.
func (c *Config) MemoryDBPath() string {
	if c.MemoryDB != "" {
		return c.MemoryDB
	}
	return filepath.Join(c.DataDir, "memory.db")
}

func (c *Config) LogFilePath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, "jarvis.log")
}

func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

func (c *Config) UIAddr() string {
	return net.JoinHostPort(c.UIHost, strconv.Itoa(c.UIPort))
}

// LocalOnly reports whether JARVIS_BACKEND names the generate-only backend.
func (c *Config) LocalOnly() bool {
	switch c.Backend {
	case "ollama", "local", "llm":
		return true
	}
	return false
}

// HostedAPIKey returns the credential for the configured hosted provider.
func (c *Config) HostedAPIKey() string {
	if c.HostedProvider == HostedAnthropic {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

// HostedModel returns the model name for the configured hosted provider.
func (c *Config) HostedModel() string {
	if c.HostedProvider == HostedAnthropic {
		return c.AnthropicModel
	}
	return c.OpenAIModel
}
