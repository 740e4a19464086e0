package loader

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the free-form per-plugin configuration block of a manifest entry.
type Config map[string]any

// String returns the string value for key, or def when absent.
// Values of the form "$NAME" or "${NAME}" are expanded from the environment.
func (c Config) String(key, def string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	s := fmt.Sprint(v)
	if s == "" {
		return def
	}
	return os.ExpandEnv(s)
}

func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(os.ExpandEnv(v)); err == nil {
			return n
		}
	}
	return def
}

func (c Config) Bool(key string, def bool) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(os.ExpandEnv(v)); err == nil {
			return b
		}
	}
	return def
}

// Duration accepts Go duration strings ("250ms") or a number of milliseconds.
func (c Config) Duration(key string, def time.Duration) time.Duration {
	switch v := c[key].(type) {
	case int:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v) * time.Millisecond
	case string:
		if d, err := time.ParseDuration(os.ExpandEnv(v)); err == nil {
			return d
		}
	}
	return def
}

func (c Config) Strings(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, os.ExpandEnv(fmt.Sprint(item)))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{os.ExpandEnv(v)}
	}
	return nil
}

// Factory builds a plugin instance from its manifest configuration.
type Factory func(ctx context.Context, cfg Config) (any, error)

// Catalog maps manifest plugin types to factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for a plugin type.
func (c *Catalog) Register(typ string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[typ] = f
}

func (c *Catalog) Lookup(typ string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[typ]
	return f, ok
}

// Types returns the registered plugin types, sorted.
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.factories))
	for t := range c.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ManifestEntry is one plugin declaration in a manifest file.
type ManifestEntry struct {
	Name     string   `yaml:"name"`
	Category Category `yaml:"category"`
	Type     string   `yaml:"type"`
	Enabled  *bool    `yaml:"enabled,omitempty"`
	Config   Config   `yaml:"config,omitempty"`
}

// Manifest is the top-level document of a plugins.yaml file.
type Manifest struct {
	Plugins []ManifestEntry `yaml:"plugins"`
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// ManifestSource declares plugins from a YAML manifest whose entries are
// resolved against a Catalog.
type ManifestSource struct {
	Path    string
	Catalog *Catalog
}

func (s ManifestSource) Name() string { return "manifest:" + s.Path }

func (s ManifestSource) Entries(ctx context.Context) ([]Entry, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	return s.entries(m), nil
}

func (s ManifestSource) entries(m *Manifest) []Entry {
	var out []Entry
	for _, me := range m.Plugins {
		if me.Enabled != nil && !*me.Enabled {
			continue
		}
		me := me
		name := me.Name
		if name == "" {
			name = me.Type
		}
		out = append(out, Entry{
			Name:     name,
			Category: me.Category,
			New: func(ctx context.Context) (any, error) {
				if s.Catalog == nil {
					return nil, fmt.Errorf("no catalog configured for plugin type %q", me.Type)
				}
				f, ok := s.Catalog.Lookup(me.Type)
				if !ok {
					return nil, fmt.Errorf("unknown plugin type %q", me.Type)
				}
				cfg := me.Config
				if cfg == nil {
					cfg = Config{}
				}
				if _, ok := cfg["name"]; !ok && me.Name != "" {
					cfg["name"] = me.Name
				}
				return f(ctx, cfg)
			},
		})
	}
	return out
}
