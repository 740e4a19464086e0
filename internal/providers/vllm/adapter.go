// Package vllm provides a provider for self-hosted OpenAI-compatible
// inference servers such as vLLM, balanced round-robin across endpoints.
package vllm

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jordanhubbard/chitti/internal/plugin"
	"github.com/jordanhubbard/chitti/internal/providers"
)

const DefaultName = "vllm"

// Adapter implements plugin.Provider for vLLM instances.
type Adapter struct {
	name      string
	endpoints []string
	models    []string
	counter   atomic.Uint64
	client    *http.Client
}

var _ plugin.Provider = (*Adapter)(nil)

type Option func(*Adapter)

func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.client.Timeout = d }
}

func WithTransport(rt http.RoundTripper) Option {
	return func(a *Adapter) { a.client.Transport = rt }
}

func WithName(name string) Option {
	return func(a *Adapter) { a.name = name }
}

// WithEndpoints adds endpoints to the round-robin set.
func WithEndpoints(endpoints ...string) Option {
	return func(a *Adapter) {
		for _, e := range endpoints {
			if e = strings.TrimRight(strings.TrimSpace(e), "/"); e != "" {
				a.endpoints = append(a.endpoints, e)
			}
		}
	}
}

// New creates an adapter serving the given models from endpoint. A vLLM
// server only knows the models it was started with, so the catalog is
// supplied by the operator.
func New(endpoint string, models []string, opts ...Option) *Adapter {
	a := &Adapter{
		name:   DefaultName,
		models: append([]string(nil), models...),
		client: &http.Client{Timeout: 60 * time.Second},
	}
	WithEndpoints(endpoint)(a)
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Info() plugin.ModelInfo {
	info := plugin.ModelInfo{
		Name:         a.name,
		Description:  "Self-hosted vLLM provider (" + strings.Join(a.endpoints, ", ") + ")",
		Models:       append([]string(nil), a.models...),
		Pricing:      map[string]plugin.Pricing{},
		Capabilities: plugin.Capabilities{Streaming: true},
	}
	if len(a.models) > 0 {
		info.DefaultModel = a.models[0]
	}
	return info
}

func (a *Adapter) nextEndpoint() string {
	idx := a.counter.Add(1) - 1
	return a.endpoints[idx%uint64(len(a.endpoints))]
}

func (a *Adapter) Generate(ctx context.Context, prompt string, opts plugin.GenerateOptions) (string, error) {
	req, err := a.request(prompt, opts, false)
	if err != nil {
		return "", err
	}
	body, err := providers.DoRequest(ctx, a.client, req)
	if err != nil {
		return "", providers.MapChatError(a.name, req.Model, err, "check the vLLM server configuration")
	}
	text, err := providers.ChatText(body)
	if err != nil {
		return "", plugin.ProviderError(a.name, err)
	}
	return text, nil
}

func (a *Adapter) GenerateStream(ctx context.Context, prompt string, opts plugin.GenerateOptions) (plugin.Stream, error) {
	req, err := a.request(prompt, opts, true)
	if err != nil {
		return nil, err
	}
	body, err := providers.DoStreamRequest(ctx, a.client, req)
	if err != nil {
		return nil, providers.MapChatError(a.name, req.Model, err, "check the vLLM server configuration")
	}
	return providers.NewChatStream(body), nil
}

func (a *Adapter) request(prompt string, opts plugin.GenerateOptions, stream bool) (providers.Request, error) {
	if len(a.endpoints) == 0 {
		return providers.Request{}, plugin.Preconditionf("%s has no endpoints configured", a.name)
	}
	model := opts.Model
	if model == "" && len(a.models) > 0 {
		model = a.models[0]
	}
	known := false
	for _, m := range a.models {
		if m == model {
			known = true
			break
		}
	}
	if !known {
		return providers.Request{}, plugin.Validationf("unsupported model: %s", model)
	}
	return providers.Request{
		URL:      a.nextEndpoint() + providers.ChatPath,
		Payload:  providers.ChatPayload(model, prompt, opts.MaxTokens, stream),
		Provider: a.name,
		Model:    model,
	}, nil
}
