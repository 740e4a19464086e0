// Package service is the dispatch façade shared by every transport. It
// resolves provider and model names against the registry, forwards prompts to
// the chosen provider and exposes registry metadata.
package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/chitti/internal/plugin"
	"github.com/jordanhubbard/chitti/internal/providers"
	"github.com/jordanhubbard/chitti/internal/registry"
)

// PromptRequest is a transport-neutral prompt submission. Empty Provider and
// Model select the registry defaults.
type PromptRequest struct {
	Prompt   string                 `json:"prompt"`
	Model    string                 `json:"model,omitempty"`
	Provider string                 `json:"provider,omitempty"`
	Context  map[string]any         `json:"context,omitempty"`
	Options  plugin.GenerateOptions `json:"-"`
}

// PromptResponse is the result of a non-streaming prompt. Metadata always
// carries "provider" and "model".
type PromptResponse struct {
	Response string         `json:"response"`
	Metadata map[string]any `json:"metadata"`
}

// Resolution records which provider and model a request resolved to.
type Resolution struct {
	RequestID string `json:"request_id"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

// Settings is the current default provider and its default model.
type Settings struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Dispatch describes one completed prompt dispatch.
type Dispatch struct {
	Resolution
	Stream      bool
	Latency     time.Duration
	PromptChars int
	OutputChars int
	Fragments   int
	Err         error
}

// Observer is notified after dispatches and default changes.
// Implementations must not block.
type Observer interface {
	Dispatched(d Dispatch)
	AgentExecuted(agent string, latency time.Duration, err error)
	DefaultsChanged(s Settings)
}

type nopObserver struct{}

func (nopObserver) Dispatched(Dispatch)                         {}
func (nopObserver) AgentExecuted(string, time.Duration, error) {}
func (nopObserver) DefaultsChanged(Settings)                    {}

// Service is safe for concurrent use.
type Service struct {
	reg      *registry.Registry
	observer Observer
	now      func() time.Time
}

type Option func(*Service)

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

func New(reg *registry.Registry, opts ...Option) *Service {
	s := &Service{reg: reg, observer: nopObserver{}, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Registry exposes the underlying registry for wiring code.
func (s *Service) Registry() *registry.Registry { return s.reg }

func (s *Service) resolve(providerName, model string) (plugin.Provider, Resolution, error) {
	p, err := s.reg.Provider(providerName)
	if err != nil {
		return nil, Resolution{}, err
	}
	if model == "" {
		model, err = s.reg.DefaultModel(p.Name())
		if err != nil {
			return nil, Resolution{}, err
		}
	}
	return p, Resolution{RequestID: uuid.NewString(), Provider: p.Name(), Model: model}, nil
}

// Process sends a prompt to the resolved provider and waits for the full
// response. Provider errors are returned unchanged.
func (s *Service) Process(ctx context.Context, req PromptRequest) (PromptResponse, error) {
	p, res, err := s.resolve(req.Provider, req.Model)
	if err != nil {
		return PromptResponse{}, err
	}

	ctx = providers.WithRequestID(ctx, res.RequestID)
	opts := req.Options
	opts.Model = res.Model
	start := s.now()
	text, err := p.Generate(ctx, req.Prompt, opts)
	latency := s.now().Sub(start)

	s.observer.Dispatched(Dispatch{
		Resolution:  res,
		Latency:     latency,
		PromptChars: len(req.Prompt),
		OutputChars: len(text),
		Err:         err,
	})
	if err != nil {
		return PromptResponse{}, err
	}
	return PromptResponse{
		Response: text,
		Metadata: map[string]any{
			"provider":   res.Provider,
			"model":      res.Model,
			"request_id": res.RequestID,
			"latency_ms": latency.Milliseconds(),
		},
	}, nil
}

// Stream opens a streaming generation on the resolved provider. The caller
// owns the returned stream and must Close it.
func (s *Service) Stream(ctx context.Context, req PromptRequest) (Resolution, plugin.Stream, error) {
	p, res, err := s.resolve(req.Provider, req.Model)
	if err != nil {
		return Resolution{}, nil, err
	}

	ctx = providers.WithRequestID(ctx, res.RequestID)
	opts := req.Options
	opts.Model = res.Model
	start := s.now()
	st, err := p.GenerateStream(ctx, req.Prompt, opts)
	if err != nil {
		s.observer.Dispatched(Dispatch{
			Resolution:  res,
			Stream:      true,
			Latency:     s.now().Sub(start),
			PromptChars: len(req.Prompt),
			Err:         err,
		})
		return res, nil, err
	}
	return res, &observedStream{
		inner: st,
		svc:   s,
		d:     Dispatch{Resolution: res, Stream: true, PromptChars: len(req.Prompt)},
		start: start,
	}, nil
}

// Complete implements plugin.Dispatcher.
func (s *Service) Complete(ctx context.Context, prompt, provider, model string) (string, error) {
	resp, err := s.Process(ctx, PromptRequest{Prompt: prompt, Provider: provider, Model: model})
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

var _ plugin.Dispatcher = (*Service)(nil)

// observedStream reports a single Dispatch once the stream ends or is closed.
type observedStream struct {
	inner plugin.Stream
	svc   *Service
	start time.Time

	mu   sync.Mutex
	d    Dispatch
	done bool
}

func (o *observedStream) Recv() (string, error) {
	frag, err := o.inner.Recv()
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case err == nil:
		o.d.Fragments++
		o.d.OutputChars += len(frag)
	case err == io.EOF:
		o.finishLocked()
	default:
		o.d.Err = err
		o.finishLocked()
	}
	return frag, err
}

func (o *observedStream) Close() error {
	err := o.inner.Close()
	o.mu.Lock()
	o.finishLocked()
	o.mu.Unlock()
	return err
}

func (o *observedStream) finishLocked() {
	if o.done {
		return
	}
	o.done = true
	o.d.Latency = o.svc.now().Sub(o.start)
	o.svc.observer.Dispatched(o.d)
}

// ProviderInfo returns the metadata of a registered provider.
func (s *Service) ProviderInfo(name string) (plugin.ModelInfo, error) {
	p, err := s.reg.Provider(name)
	if err != nil {
		return plugin.ModelInfo{}, err
	}
	return p.Info(), nil
}

func (s *Service) AgentInfo(name string) (plugin.AgentInfo, error) {
	a, err := s.reg.Agent(name)
	if err != nil {
		return plugin.AgentInfo{}, err
	}
	return a.Info(), nil
}

func (s *Service) ToolInfo(name string) (plugin.ToolInfo, error) {
	t, err := s.reg.Tool(name)
	if err != nil {
		return plugin.ToolInfo{}, err
	}
	return t.Info(), nil
}

func (s *Service) ListProviders() []string { return s.reg.Providers() }
func (s *Service) ListAgents() []string    { return s.reg.Agents() }
func (s *Service) ListTools() []string     { return s.reg.Tools() }

func (s *Service) SetDefaultProvider(name string) error {
	if err := s.reg.SetDefaultProvider(name); err != nil {
		return err
	}
	s.notifyDefaults()
	return nil
}

func (s *Service) SetDefaultModel(provider, model string) error {
	if err := s.reg.SetDefaultModel(provider, model); err != nil {
		return err
	}
	s.notifyDefaults()
	return nil
}

func (s *Service) notifyDefaults() {
	if settings, err := s.DefaultSettings(); err == nil {
		s.observer.DefaultsChanged(settings)
	}
}

// DefaultSettings reports the default provider and its default model.
// It fails with a precondition error when no provider is registered.
func (s *Service) DefaultSettings() (Settings, error) {
	name, ok := s.reg.DefaultProvider()
	if !ok {
		return Settings{}, plugin.Preconditionf("no default provider set")
	}
	model, err := s.reg.DefaultModel(name)
	if err != nil {
		return Settings{}, err
	}
	return Settings{Provider: name, Model: model}, nil
}

// ExecuteAgent runs a task on the named agent.
func (s *Service) ExecuteAgent(ctx context.Context, name, task string, taskCtx map[string]any) (plugin.TaskResult, error) {
	a, err := s.reg.Agent(name)
	if err != nil {
		return plugin.TaskResult{}, err
	}
	if task == "" {
		return plugin.TaskResult{}, plugin.Validationf("task must not be empty")
	}
	start := s.now()
	result, err := a.Execute(ctx, task, taskCtx)
	s.observer.AgentExecuted(name, s.now().Sub(start), err)
	if err != nil {
		return plugin.TaskResult{}, fmt.Errorf("agent %s: %w", name, err)
	}
	return result, nil
}

// ExecuteTool runs the named tool with the given input.
func (s *Service) ExecuteTool(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	t, err := s.reg.Tool(name)
	if err != nil {
		return nil, err
	}
	if input == nil {
		input = map[string]any{}
	}
	out, err := t.Execute(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return out, nil
}
