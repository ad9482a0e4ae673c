// Package packs holds the knowledge pack catalog and the mode preambles that
// are prepended to prompts.
package packs

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sipeed/picojarvis/pkg/logger"
)

//go:embed builtin.yaml
var builtinYAML []byte

// File is the on-disk layout of the built-in catalog and of overlay files.
type File struct {
	Packs []Entry           `yaml:"packs"`
	Modes map[string]string `yaml:"modes"`
}

type Entry struct {
	Name   string `yaml:"name"`
	Text   string `yaml:"text"`
	Remove bool   `yaml:"remove,omitempty"`
}

// Catalog is the read-only (from the session's point of view) mapping of pack
// names to reference text. It is safe for concurrent use; overlay reloads
// swap the whole view at once.
type Catalog struct {
	mu    sync.RWMutex
	base  File
	packs map[string]string
	modes map[string]string

	overlayPath string
}

// NewCatalog returns a catalog holding only the built-in packs.
func NewCatalog() *Catalog {
	var base File
	if err := yaml.Unmarshal(builtinYAML, &base); err != nil {
		panic(fmt.Sprintf("packs: invalid builtin catalog: %v", err))
	}
	c := &Catalog{base: base}
	c.apply(nil)
	return c
}

// NewCatalogFromFile returns the built-in catalog with the overlay at path
// applied. An empty path means no overlay.
func NewCatalogFromFile(path string) (*Catalog, error) {
	c := NewCatalog()
	if path == "" {
		return c, nil
	}
	c.overlayPath = path
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// OverlayPath returns the overlay file, if any.
func (c *Catalog) OverlayPath() string {
	return c.overlayPath
}

// Reload re-reads the overlay file. A missing file resets the catalog to the
// built-ins; a malformed file leaves the current view untouched.
func (c *Catalog) Reload() error {
	if c.overlayPath == "" {
		return nil
	}
	data, err := os.ReadFile(c.overlayPath)
	if os.IsNotExist(err) {
		c.apply(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read pack overlay: %w", err)
	}
	overlay, err := parse(data)
	if err != nil {
		return fmt.Errorf("parse pack overlay %s: %w", c.overlayPath, err)
	}
	c.apply(overlay)
	logger.InfoCF("packs", "Pack overlay loaded", map[string]any{
		"path":  c.overlayPath,
		"packs": len(c.Names()),
	})
	return nil
}

func parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	for i, e := range f.Packs {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("pack %d has no name", i)
		}
	}
	return &f, nil
}

func (c *Catalog) apply(overlay *File) {
	packs := make(map[string]string, len(c.base.Packs))
	for _, e := range c.base.Packs {
		packs[e.Name] = e.Text
	}
	modes := make(map[string]string, len(c.base.Modes))
	for k, v := range c.base.Modes {
		modes[k] = v
	}
	if overlay != nil {
		for _, e := range overlay.Packs {
			if e.Remove {
				delete(packs, e.Name)
				continue
			}
			packs[e.Name] = e.Text
		}
		for k, v := range overlay.Modes {
			modes[k] = v
		}
	}

	c.mu.Lock()
	c.packs = packs
	c.modes = modes
	c.mu.Unlock()
}

// Names returns all pack names sorted ascending.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.packs))
	for name := range c.packs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) Get(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.packs[name]
	return text, ok
}

func (c *Catalog) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Context renders the active packs as "[PACK:<name>]\n<text>\n" blocks joined
// by newlines. Names missing from the catalog are skipped.
func (c *Catalog) Context(active []string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	blocks := make([]string, 0, len(active))
	for _, name := range active {
		text, ok := c.packs[name]
		if !ok || text == "" {
			continue
		}
		blocks = append(blocks, "[PACK:"+name+"]\n"+text+"\n")
	}
	return strings.Join(blocks, "\n")
}

// Preamble returns the instruction text for mode, ending in a newline, or ""
// for modes without one.
func (c *Catalog) Preamble(mode string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := strings.TrimSpace(c.modes[mode])
	if p == "" {
		return ""
	}
	return p + "\n"
}
