package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sipeed/picojarvis/pkg/agent"
	"github.com/sipeed/picojarvis/pkg/config"
	"github.com/sipeed/picojarvis/pkg/logger"
	"github.com/sipeed/picojarvis/pkg/packs"
	"github.com/sipeed/picojarvis/pkg/providers"
	"github.com/sipeed/picojarvis/pkg/router"
	"github.com/sipeed/picojarvis/pkg/state"
	"github.com/sipeed/picojarvis/pkg/tools"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

// LoadConfig reads the configuration and sets up logging. debug forces
// debug level on top of JARVIS_DEBUG. When toFile is set, log lines are
// also written to the configured log file.
func LoadConfig(debug, toFile bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Debug = true
	}
	if cfg.Debug {
		logger.SetLevel(logger.DEBUG)
	}
	if toFile {
		path := cfg.LogFilePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		if err := logger.EnableFileLogging(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Runtime is the assembled command pipeline shared by every surface.
type Runtime struct {
	Config  *config.Config
	Store   state.Store
	Catalog *packs.Catalog
	Tools   *tools.ToolRegistry
	Router  *router.Router
}

type RuntimeOptions struct {
	// InMemory keeps session state in process instead of the database.
	InMemory bool
}

func NewRuntime(cfg *config.Config, opts RuntimeOptions) (*Runtime, error) {
	var store state.Store
	if opts.InMemory {
		store = state.NewMemory()
	} else {
		s, err := state.NewSQLite(cfg.MemoryDBPath())
		if err != nil {
			return nil, err
		}
		store = s
	}

	catalog, err := packs.NewCatalogFromFile(cfg.PacksFile)
	if err != nil {
		store.Close()
		return nil, err
	}

	registry := tools.NewBuiltinRegistry(tools.Options{
		AllowShell: bool(cfg.AllowShell),
		Headless:   bool(cfg.Headless),
		DataDir:    cfg.DataDir,
		Timeout:    cfg.ToolTimeout,
	})
	builder := &agent.Builder{
		Ollama:   providers.NewOllamaClient(cfg.OllamaBase),
		Registry: registry,
	}

	logger.InfoCF("jarvis", "Runtime ready", map[string]any{
		"backend":    cfg.Backend,
		"tools":      registry.Count(),
		"packs":      len(catalog.Names()),
		"in_memory":  opts.InMemory,
		"shell":      bool(cfg.AllowShell),
		"headless":   bool(cfg.Headless),
		"packs_file": cfg.PacksFile,
	})

	return &Runtime{
		Config:  cfg,
		Store:   store,
		Catalog: catalog,
		Tools:   registry,
		Router:  router.New(cfg, state.NewSession(store), catalog, builder),
	}, nil
}

func (rt *Runtime) Close() error {
	logger.Sync()
	return rt.Store.Close()
}
