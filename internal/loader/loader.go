// Package loader populates a registry from plugin sources at process start.
// Loading is best effort: a plugin that fails to construct or register is
// reported as a diagnostic and never prevents the remaining plugins from
// loading.
package loader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jordanhubbard/chitti/internal/events"
	"github.com/jordanhubbard/chitti/internal/metrics"
	"github.com/jordanhubbard/chitti/internal/plugin"
)

// Category groups plugins by the contract they implement.
type Category string

const (
	CategoryProviders Category = "providers"
	CategoryAgents    Category = "agents"
	CategoryTools     Category = "tools"
)

// Categories lists the categories in load order.
var Categories = []Category{CategoryProviders, CategoryAgents, CategoryTools}

// Entry is a single declared plugin.
type Entry struct {
	Name     string
	Category Category
	New      func(ctx context.Context) (any, error)
}

// Source enumerates declared plugins.
type Source interface {
	Name() string
	Entries(ctx context.Context) ([]Entry, error)
}

// Registrar is the registration surface of the registry.
type Registrar interface {
	RegisterProvider(p plugin.Provider) error
	RegisterAgent(a plugin.Agent) error
	RegisterTool(t plugin.Tool) error
}

// Failure describes one plugin that could not be loaded.
type Failure struct {
	Source   string   `json:"source"`
	Category Category `json:"category,omitempty"`
	Name     string   `json:"name,omitempty"`
	Err      error    `json:"-"`
}

func (f Failure) Error() string {
	if f.Name == "" {
		return fmt.Sprintf("source %s: %v", f.Source, f.Err)
	}
	return fmt.Sprintf("%s %s (%s): %v", f.Category, f.Name, f.Source, f.Err)
}

// Loaded describes one plugin that was registered.
type Loaded struct {
	Source   string   `json:"source"`
	Category Category `json:"category"`
	Name     string   `json:"name"`
}

// Report summarises a Load call.
type Report struct {
	Loaded   []Loaded  `json:"loaded"`
	Failures []Failure `json:"-"`
}

// OK reports whether every declared plugin loaded.
func (r Report) OK() bool { return len(r.Failures) == 0 }

// Loader loads plugins into a Registrar.
type Loader struct {
	logger  *slog.Logger
	metrics *metrics.Registry
	bus     *events.Bus
}

// Option configures a Loader.
type Option func(*Loader)

func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(ld *Loader) { ld.metrics = m }
}

func WithEventBus(b *events.Bus) Option {
	return func(ld *Loader) { ld.bus = b }
}

func New(opts ...Option) *Loader {
	l := &Loader{logger: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

type sourced struct {
	source string
	entry  Entry
}

// Load enumerates every source and registers its plugins, category by
// category. It never fails as a whole; per-plugin problems end up in the
// returned Report and in the logs.
func (l *Loader) Load(ctx context.Context, reg Registrar, sources ...Source) Report {
	var report Report

	byCategory := make(map[Category][]sourced)
	for _, src := range sources {
		entries, err := src.Entries(ctx)
		if err != nil {
			l.fail(&report, Failure{Source: src.Name(), Err: err})
			continue
		}
		for _, e := range entries {
			byCategory[e.Category] = append(byCategory[e.Category], sourced{source: src.Name(), entry: e})
		}
	}

	for cat, list := range byCategory {
		if !knownCategory(cat) {
			for _, s := range list {
				l.fail(&report, Failure{Source: s.source, Category: cat, Name: s.entry.Name,
					Err: fmt.Errorf("unknown plugin category %q", cat)})
			}
		}
	}

	for _, cat := range Categories {
		for _, s := range byCategory[cat] {
			if err := l.loadOne(ctx, reg, s.entry); err != nil {
				l.fail(&report, Failure{Source: s.source, Category: cat, Name: s.entry.Name, Err: err})
				continue
			}
			report.Loaded = append(report.Loaded, Loaded{Source: s.source, Category: cat, Name: s.entry.Name})
			l.logger.Info("loaded plugin",
				slog.String("category", string(cat)),
				slog.String("plugin", s.entry.Name),
				slog.String("source", s.source),
			)
			if l.metrics != nil {
				l.metrics.PluginLoads.WithLabelValues(string(cat), "ok").Inc()
			}
			if l.bus != nil {
				l.bus.Publish(events.Event{Type: events.EventPluginLoaded, Plugin: s.entry.Name, Category: string(cat)})
			}
		}
	}
	return report
}

func (l *Loader) fail(report *Report, f Failure) {
	report.Failures = append(report.Failures, f)
	l.logger.Error("error loading plugin",
		slog.String("category", string(f.Category)),
		slog.String("plugin", f.Name),
		slog.String("source", f.Source),
		slog.String("error", f.Err.Error()),
	)
	if l.metrics != nil {
		cat := string(f.Category)
		if cat == "" {
			cat = "source"
		}
		l.metrics.PluginLoads.WithLabelValues(cat, "error").Inc()
	}
	if l.bus != nil {
		l.bus.Publish(events.Event{
			Type:     events.EventPluginFailed,
			Plugin:   f.Name,
			Category: string(f.Category),
			ErrorMsg: f.Err.Error(),
		})
	}
}

// loadOne constructs and registers a single entry. Plugin code runs in the
// constructor and again inside registration (Name, Info), so a panic anywhere
// in here is reported as that entry's failure.
func (l *Loader) loadOne(ctx context.Context, reg Registrar, e Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %q panicked during registration: %v", e.Name, r)
		}
	}()
	if e.New == nil {
		return fmt.Errorf("plugin %q has no constructor", e.Name)
	}
	inst, err := construct(ctx, e)
	if err != nil {
		return err
	}
	switch e.Category {
	case CategoryProviders:
		p, ok := inst.(plugin.Provider)
		if !ok {
			return fmt.Errorf("%T does not implement plugin.Provider", inst)
		}
		return reg.RegisterProvider(p)
	case CategoryAgents:
		a, ok := inst.(plugin.Agent)
		if !ok {
			return fmt.Errorf("%T does not implement plugin.Agent", inst)
		}
		return reg.RegisterAgent(a)
	case CategoryTools:
		t, ok := inst.(plugin.Tool)
		if !ok {
			return fmt.Errorf("%T does not implement plugin.Tool", inst)
		}
		return reg.RegisterTool(t)
	}
	return fmt.Errorf("unknown plugin category %q", e.Category)
}

// construct calls the entry constructor, converting a panic into an error.
func construct(ctx context.Context, e Entry) (inst any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin constructor panicked: %v", r)
		}
	}()
	inst, err = e.New(ctx)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("plugin constructor returned nil")
	}
	return inst, nil
}

func knownCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// StaticSource is a fixed, compiled-in list of plugins.
type StaticSource struct {
	Label string
	List  []Entry
}

func (s StaticSource) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

func (s StaticSource) Entries(context.Context) ([]Entry, error) {
	return s.List, nil
}
