// Package health derives a per-provider health state from dispatch
// outcomes. It is informational: dispatch never skips a provider because
// of its state.
package health

import (
	"sort"
	"sync"
	"time"

	"github.com/jordanhubbard/chitti/internal/events"
)

// State represents the health state of a provider.
type State string

const (
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateDown     State = "down"
)

// Level maps a state to a gauge value: 0 healthy, 1 degraded, 2 down.
func (s State) Level() float64 {
	switch s {
	case StateDegraded:
		return 1
	case StateDown:
		return 2
	}
	return 0
}

// Stats captures runtime health metrics for a single provider.
type Stats struct {
	Provider      string    `json:"provider"`
	State         State     `json:"state"`
	Requests      int64     `json:"requests"`
	Errors        int64     `json:"errors"`
	ConsecErrors  int       `json:"consec_errors"`
	AvgLatencyMs  float64   `json:"avg_latency_ms"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorKind string    `json:"last_error_kind,omitempty"`
	LastErrorAt   time.Time `json:"last_error_at,omitempty"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
}

// Config holds the consecutive-error thresholds.
type Config struct {
	ConsecErrorsForDegraded int
	ConsecErrorsForDown     int
}

func DefaultConfig() Config {
	return Config{
		ConsecErrorsForDegraded: 2,
		ConsecErrorsForDown:     5,
	}
}

// Tracker is safe for concurrent use.
type Tracker struct {
	cfg      Config
	bus      *events.Bus
	onUpdate func(provider string, state State)
	now      func() time.Time

	mu    sync.RWMutex
	stats map[string]*Stats
}

type Option func(*Tracker)

// WithEventBus publishes state transitions as health_change events.
func WithEventBus(bus *events.Bus) Option {
	return func(t *Tracker) { t.bus = bus }
}

// WithOnUpdate registers a callback invoked after every recorded outcome,
// not just transitions. Use it to keep gauges current.
func WithOnUpdate(fn func(provider string, state State)) Option {
	return func(t *Tracker) { t.onUpdate = fn }
}

func NewTracker(cfg Config, opts ...Option) *Tracker {
	if cfg.ConsecErrorsForDegraded <= 0 {
		cfg.ConsecErrorsForDegraded = DefaultConfig().ConsecErrorsForDegraded
	}
	if cfg.ConsecErrorsForDown < cfg.ConsecErrorsForDegraded {
		cfg.ConsecErrorsForDown = cfg.ConsecErrorsForDegraded
	}
	t := &Tracker{
		cfg:   cfg,
		now:   time.Now,
		stats: make(map[string]*Stats),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// RecordSuccess resets the error streak and folds latency into the
// moving average.
func (t *Tracker) RecordSuccess(provider string, latency time.Duration) {
	ms := float64(latency) / float64(time.Millisecond)

	t.mu.Lock()
	s := t.getOrCreate(provider)
	old := s.State
	s.Requests++
	s.ConsecErrors = 0
	s.LastSuccessAt = t.now()
	s.State = StateHealthy
	if s.Requests-s.Errors == 1 {
		s.AvgLatencyMs = ms
	} else {
		s.AvgLatencyMs = s.AvgLatencyMs*0.9 + ms*0.1
	}
	t.mu.Unlock()

	t.notify(provider, old, StateHealthy, "success recorded")
}

// RecordError extends the error streak. kind is the error taxonomy kind.
func (t *Tracker) RecordError(provider, kind, msg string) {
	t.mu.Lock()
	s := t.getOrCreate(provider)
	old := s.State
	s.Requests++
	s.Errors++
	s.ConsecErrors++
	s.LastError = msg
	s.LastErrorKind = kind
	s.LastErrorAt = t.now()
	switch {
	case s.ConsecErrors >= t.cfg.ConsecErrorsForDown:
		s.State = StateDown
	case s.ConsecErrors >= t.cfg.ConsecErrorsForDegraded:
		s.State = StateDegraded
	}
	state := s.State
	t.mu.Unlock()

	t.notify(provider, old, state, msg)
}

func (t *Tracker) notify(provider string, old, state State, reason string) {
	if t.onUpdate != nil {
		t.onUpdate(provider, state)
	}
	if old != state && t.bus != nil {
		t.bus.Publish(events.Event{
			Type:     events.EventHealthChange,
			Provider: provider,
			OldState: string(old),
			NewState: string(state),
			ErrorMsg: reason,
		})
	}
}

// Get returns a copy of the stats for provider. Unknown providers are
// healthy.
func (t *Tracker) Get(provider string) Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.stats[provider]; ok {
		return *s
	}
	return Stats{Provider: provider, State: StateHealthy}
}

// All returns a copy of every provider's stats, sorted by name.
func (t *Tracker) All() []Stats {
	t.mu.RLock()
	out := make([]Stats, 0, len(t.stats))
	for _, s := range t.stats {
		out = append(out, *s)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

func (t *Tracker) getOrCreate(provider string) *Stats {
	s, ok := t.stats[provider]
	if !ok {
		s = &Stats{Provider: provider, State: StateHealthy}
		t.stats[provider] = s
	}
	return s
}
