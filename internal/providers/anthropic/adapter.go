// Package anthropic is the reference hosted-inference provider. It speaks the
// Anthropic Messages API over SSE and falls back across its model catalog
// when the upstream is throttling.
package anthropic

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/jordanhubbard/chitti/internal/plugin"
	"github.com/jordanhubbard/chitti/internal/providers"
)

const (
	DefaultName      = "anthropic"
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultMaxTokens = 8192
	apiVersion       = "2023-06-01"
	messagesPath     = "/v1/messages"
)

// Models is the default catalog, in fallback preference order.
var Models = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-5-sonnet-20240620",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
	"claude-3-opus-20240229",
}

// Pricing is the default per-1K-token price table for Models.
var Pricing = map[string]plugin.Pricing{
	"claude-3-5-sonnet-20241022": {InputCostPer1K: 0.003, OutputCostPer1K: 0.015},
	"claude-3-5-haiku-20241022":  {InputCostPer1K: 0.001, OutputCostPer1K: 0.005},
	"claude-3-5-sonnet-20240620": {InputCostPer1K: 0.003, OutputCostPer1K: 0.015},
	"claude-3-sonnet-20240229":   {InputCostPer1K: 0.003, OutputCostPer1K: 0.015},
	"claude-3-haiku-20240307":    {InputCostPer1K: 0.00025, OutputCostPer1K: 0.00125},
	"claude-3-opus-20240229":     {InputCostPer1K: 0.015, OutputCostPer1K: 0.075},
}

// credentialsGuidance is returned to operators when the upstream rejects the
// configured key.
const credentialsGuidance = `Anthropic API credentials have expired or are invalid.

Refresh them using one of these methods:

  1. Export a new key:
       export CHITTI_ANTHROPIC_API_KEY=<your key>

  2. Update CHITTI_ANTHROPIC_API_KEY in your .env file.

Then restart chitti.`

// FallbackPolicy controls which models are tried when the upstream throttles.
// The requested model is always tried first, followed by Models in order with
// duplicates skipped. An empty Models list means the provider catalog.
type FallbackPolicy struct {
	Models     []string
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// PartialResultPolicy decides what Generate does when the stream fails after
// at least one fragment arrived.
type PartialResultPolicy int

const (
	// KeepPartial returns the text received so far and drops the error.
	KeepPartial PartialResultPolicy = iota
	// FailOnTrailingError returns the error and discards partial text.
	FailOnTrailingError
)

// FallbackHook observes every model switch.
type FallbackHook func(from, to string, cause error)

// Adapter implements plugin.Provider for the Anthropic Messages API.
type Adapter struct {
	name        string
	apiKey      string
	baseURL     string
	client      *http.Client
	openTimeout time.Duration
	models      []string
	pricing     map[string]plugin.Pricing
	maxTokens   int
	policy      FallbackPolicy
	partial     PartialResultPolicy
	onSwitch    FallbackHook
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

var _ plugin.Provider = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout bounds how long each attempt may wait for the upstream to
// start streaming. Reading the body is bounded only by the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.openTimeout = d }
}

// WithTransport replaces the HTTP transport, for example with a traced one.
func WithTransport(rt http.RoundTripper) Option {
	return func(a *Adapter) { a.client.Transport = rt }
}

func WithName(name string) Option {
	return func(a *Adapter) { a.name = name }
}

// WithModels replaces the catalog. Prices for unknown models are left unset.
func WithModels(models ...string) Option {
	return func(a *Adapter) { a.models = append([]string(nil), models...) }
}

func WithMaxTokens(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

func WithFallbackPolicy(p FallbackPolicy) Option {
	return func(a *Adapter) { a.policy = p }
}

func WithPartialResultPolicy(p PartialResultPolicy) Option {
	return func(a *Adapter) { a.partial = p }
}

func WithFallbackHook(h FallbackHook) Option {
	return func(a *Adapter) { a.onSwitch = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates an adapter. An empty baseURL selects the public API.
func New(apiKey, baseURL string, opts ...Option) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	a := &Adapter{
		name:        DefaultName,
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{},
		openTimeout: 60 * time.Second,
		models:      append([]string(nil), Models...),
		pricing:     Pricing,
		maxTokens:   DefaultMaxTokens,
		policy:      FallbackPolicy{Backoff: 500 * time.Millisecond, MaxBackoff: 8 * time.Second},
		logger:      slog.Default(),
		sleep:       sleepCtx,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Info() plugin.ModelInfo {
	pricing := make(map[string]plugin.Pricing, len(a.models))
	for _, m := range a.models {
		if p, ok := a.pricing[m]; ok {
			pricing[m] = p
		}
	}
	info := plugin.ModelInfo{
		Name:         a.name,
		Description:  "Anthropic Messages API provider with throttling fallback",
		Models:       append([]string(nil), a.models...),
		Pricing:      pricing,
		Capabilities: plugin.Capabilities{Streaming: true},
	}
	if len(a.models) > 0 {
		info.DefaultModel = a.models[0]
	}
	return info
}

// Generate streams the response and concatenates every text fragment.
func (a *Adapter) Generate(ctx context.Context, prompt string, opts plugin.GenerateOptions) (string, error) {
	st, err := a.GenerateStream(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	defer func() { _ = st.Close() }()

	var (
		b     strings.Builder
		count int
	)
	for {
		frag, err := st.Recv()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			if count > 0 && a.partial == KeepPartial {
				a.logger.Warn("returning partial response after stream error",
					slog.String("provider", a.name),
					slog.Int("fragments", count),
					slog.String("error", err.Error()),
				)
				return b.String(), nil
			}
			return "", err
		}
		b.WriteString(frag)
		count++
	}
}

// GenerateStream opens a streaming generation. Fallback applies only while
// opening the stream; once fragments flow the model is fixed.
func (a *Adapter) GenerateStream(ctx context.Context, prompt string, opts plugin.GenerateOptions) (plugin.Stream, error) {
	model := opts.Model
	if model == "" && len(a.models) > 0 {
		model = a.models[0]
	}
	if !a.hasModel(model) {
		return nil, plugin.Validationf("unsupported model: %s", model)
	}
	maxTokens := a.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	order := a.attemptOrder(model)
	var last error
	for i, m := range order {
		body, err := a.open(ctx, providers.Request{
			URL: a.baseURL + messagesPath,
			Payload: map[string]any{
				"model":      m,
				"messages":   []map[string]string{{"role": "user", "content": prompt}},
				"max_tokens": maxTokens,
				"stream":     true,
			},
			Headers:  a.headers(),
			Provider: a.name,
			Model:    m,
		})
		if err == nil {
			a.logger.Debug("using model", slog.String("provider", a.name), slog.String("model", m))
			return newStream(body), nil
		}

		switch classify(err) {
		case classThrottled:
			last = err
			if i+1 < len(order) {
				next := order[i+1]
				a.logger.Warn("model throttled, falling back",
					slog.String("provider", a.name),
					slog.String("from", m),
					slog.String("to", next),
				)
				if a.onSwitch != nil {
					a.onSwitch(m, next, err)
				}
				if serr := a.sleep(ctx, a.backoff(i, err)); serr != nil {
					return nil, serr
				}
			}
		case classCredentials:
			return nil, plugin.CredentialsExpired(credentialsGuidance, err)
		default:
			return nil, plugin.ProviderError(fmt.Sprintf("%s model %s", a.name, m), err)
		}
	}
	return nil, plugin.CapacityExhausted(
		fmt.Sprintf("%s: all %d models are throttled", a.name, len(order)), last)
}

// open issues one streaming request. The attempt is cancelled if response
// headers do not arrive within openTimeout; once they do, the body lives until
// it is closed or ctx ends.
func (a *Adapter) open(ctx context.Context, req providers.Request) (io.ReadCloser, error) {
	if a.openTimeout <= 0 {
		return providers.DoStreamRequest(ctx, a.client, req)
	}
	attemptCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(a.openTimeout, cancel)
	body, err := providers.DoStreamRequest(attemptCtx, a.client, req)
	expired := !timer.Stop()
	if err == nil && !expired {
		return &cancelOnClose{ReadCloser: body, cancel: cancel}, nil
	}
	if body != nil {
		_ = body.Close()
	}
	cancel()
	if expired && ctx.Err() == nil {
		return nil, fmt.Errorf("no response from %s within %s: %w", req.Model, a.openTimeout, context.DeadlineExceeded)
	}
	return nil, err
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": apiVersion,
	}
}

func (a *Adapter) hasModel(m string) bool {
	for _, known := range a.models {
		if known == m {
			return true
		}
	}
	return false
}

// attemptOrder is the requested model followed by the policy's fallback
// list, without duplicates.
func (a *Adapter) attemptOrder(requested string) []string {
	fallback := a.policy.Models
	if len(fallback) == 0 {
		fallback = a.models
	}
	seen := map[string]bool{requested: true}
	order := []string{requested}
	for _, m := range fallback {
		if !seen[m] {
			seen[m] = true
			order = append(order, m)
		}
	}
	return order
}

// backoff doubles per attempt, honours Retry-After and is capped by MaxBackoff.
func (a *Adapter) backoff(attempt int, err error) time.Duration {
	d := a.policy.Backoff
	for i := 0; i < attempt && d > 0; i++ {
		if a.policy.MaxBackoff > 0 && d >= a.policy.MaxBackoff {
			break
		}
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
	}
	if se := asStatus(err); se != nil && se.RetryAfter() > d {
		d = se.RetryAfter()
	}
	if a.policy.MaxBackoff > 0 && d > a.policy.MaxBackoff {
		d = a.policy.MaxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
