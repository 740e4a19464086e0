// Package echo is a deterministic local provider. It needs no credentials
// and is registered when no hosted provider is configured, so a fresh
// install can serve prompts end to end.
package echo

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jordanhubbard/chitti/internal/plugin"
)

const DefaultName = "echo"

// Models: "echo" repeats the prompt, "shout" upper-cases it, "reverse"
// reverses word order.
var Models = []string{"echo", "shout", "reverse"}

type Provider struct {
	name  string
	delay time.Duration
}

var _ plugin.Provider = (*Provider)(nil)

type Option func(*Provider)

func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithDelay pauses between streamed fragments.
func WithDelay(d time.Duration) Option {
	return func(p *Provider) { p.delay = d }
}

func New(opts ...Option) *Provider {
	p := &Provider{name: DefaultName}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Info() plugin.ModelInfo {
	pricing := make(map[string]plugin.Pricing, len(Models))
	for _, m := range Models {
		pricing[m] = plugin.Pricing{}
	}
	return plugin.ModelInfo{
		Name:         p.name,
		Description:  "Local echo provider for development and testing",
		Models:       append([]string(nil), Models...),
		DefaultModel: Models[0],
		Pricing:      pricing,
		Capabilities: plugin.Capabilities{Streaming: true},
	}
}

func (p *Provider) Generate(ctx context.Context, prompt string, opts plugin.GenerateOptions) (string, error) {
	text, err := render(prompt, opts.Model)
	if err != nil {
		return "", err
	}
	return text, ctx.Err()
}

func (p *Provider) GenerateStream(ctx context.Context, prompt string, opts plugin.GenerateOptions) (plugin.Stream, error) {
	text, err := render(prompt, opts.Model)
	if err != nil {
		return nil, err
	}
	return &stream{ctx: ctx, fragments: words(text), delay: p.delay}, nil
}

func render(prompt, model string) (string, error) {
	switch model {
	case "", "echo":
		return prompt, nil
	case "shout":
		return strings.ToUpper(prompt), nil
	case "reverse":
		f := strings.Fields(prompt)
		for i, j := 0, len(f)-1; i < j; i, j = i+1, j-1 {
			f[i], f[j] = f[j], f[i]
		}
		return strings.Join(f, " "), nil
	}
	return "", plugin.Validationf("unsupported model: %s", model)
}

// words splits s into fragments that keep their trailing separator, so the
// fragments concatenate back to s.
func words(s string) []string {
	var out []string
	for s != "" {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}

type stream struct {
	ctx       context.Context
	delay     time.Duration
	mu        sync.Mutex
	fragments []string
	closed    bool
}

func (s *stream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.fragments) == 0 {
		return "", io.EOF
	}
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return "", s.ctx.Err()
		case <-t.C:
		}
	}
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	frag := s.fragments[0]
	s.fragments = s.fragments[1:]
	return frag, nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
