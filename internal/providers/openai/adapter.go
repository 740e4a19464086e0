// Package openai provides an OpenAI chat-completions provider.
package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jordanhubbard/chitti/internal/plugin"
	"github.com/jordanhubbard/chitti/internal/providers"
)

const (
	DefaultName    = "openai"
	DefaultBaseURL = "https://api.openai.com"
)

var Models = []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini"}

var Pricing = map[string]plugin.Pricing{
	"gpt-4o":       {InputCostPer1K: 0.0025, OutputCostPer1K: 0.01},
	"gpt-4o-mini":  {InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006},
	"gpt-4.1":      {InputCostPer1K: 0.002, OutputCostPer1K: 0.008},
	"gpt-4.1-mini": {InputCostPer1K: 0.0004, OutputCostPer1K: 0.0016},
}

const credentialsGuidance = `OpenAI rejected the configured API key.

Set a valid key with:
  export CHITTI_OPENAI_API_KEY=<your key>

Then restart chitti.`

// Adapter implements plugin.Provider for OpenAI.
type Adapter struct {
	name    string
	apiKey  string
	baseURL string
	models  []string
	client  *http.Client
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

func WithModels(models ...string) Option {
	return func(a *Adapter) { a.models = append([]string(nil), models...) }
}

func New(apiKey, baseURL string, opts ...Option) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	a := &Adapter{
		name:    DefaultName,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		models:  append([]string(nil), Models...),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Info() plugin.ModelInfo {
	pricing := make(map[string]plugin.Pricing)
	for _, m := range a.models {
		if p, ok := Pricing[m]; ok {
			pricing[m] = p
		}
	}
	info := plugin.ModelInfo{
		Name:         a.name,
		Description:  "OpenAI chat completions provider",
		Models:       append([]string(nil), a.models...),
		Pricing:      pricing,
		Capabilities: plugin.Capabilities{Streaming: true, FunctionCalling: true, Vision: true},
	}
	if len(a.models) > 0 {
		info.DefaultModel = a.models[0]
	}
	return info
}

func (a *Adapter) Generate(ctx context.Context, prompt string, opts plugin.GenerateOptions) (string, error) {
	model, err := a.model(opts)
	if err != nil {
		return "", err
	}
	body, err := providers.DoRequest(ctx, a.client, a.request(model, prompt, opts.MaxTokens, false))
	if err != nil {
		return "", providers.MapChatError(a.name, model, err, credentialsGuidance)
	}
	text, err := providers.ChatText(body)
	if err != nil {
		return "", plugin.ProviderError(a.name, err)
	}
	return text, nil
}

func (a *Adapter) GenerateStream(ctx context.Context, prompt string, opts plugin.GenerateOptions) (plugin.Stream, error) {
	model, err := a.model(opts)
	if err != nil {
		return nil, err
	}
	body, err := providers.DoStreamRequest(ctx, a.client, a.request(model, prompt, opts.MaxTokens, true))
	if err != nil {
		return nil, providers.MapChatError(a.name, model, err, credentialsGuidance)
	}
	return providers.NewChatStream(body), nil
}

func (a *Adapter) model(opts plugin.GenerateOptions) (string, error) {
	m := opts.Model
	if m == "" && len(a.models) > 0 {
		m = a.models[0]
	}
	for _, known := range a.models {
		if known == m {
			return m, nil
		}
	}
	return "", plugin.Validationf("unsupported model: %s", m)
}

func (a *Adapter) request(model, prompt string, maxTokens int, stream bool) providers.Request {
	return providers.Request{
		URL:      a.baseURL + providers.ChatPath,
		Payload:  providers.ChatPayload(model, prompt, maxTokens, stream),
		Headers:  map[string]string{"Authorization": "Bearer " + a.apiKey},
		Provider: a.name,
		Model:    model,
	}
}
