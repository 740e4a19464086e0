// Package plugintest provides deterministic in-memory plugins for tests.
package plugintest

import (
	"context"
	"strings"
	"sync"

	"github.com/jordanhubbard/chitti/internal/plugin"
)

// Call records a single generation request seen by a Provider.
type Call struct {
	Prompt string
	Model  string
	Stream bool
}

// Provider is a configurable mock provider. Responses echo the prompt as
// "<model>: <prompt>" unless Reply is set; streaming splits the same text on
// spaces so the concatenation of fragments equals Generate's result.
type Provider struct {
	ID     string
	Models []string
	Reply  string
	Err    error

	mu    sync.Mutex
	calls []Call
}

// NewProvider returns a mock provider with the given catalog.
func NewProvider(id string, models ...string) *Provider {
	return &Provider{ID: id, Models: models}
}

func (p *Provider) Name() string { return p.ID }

func (p *Provider) Info() plugin.ModelInfo {
	info := plugin.ModelInfo{
		Name:         p.ID,
		Description:  "mock provider",
		Models:       p.Models,
		Pricing:      map[string]plugin.Pricing{},
		Capabilities: plugin.Capabilities{Streaming: true},
	}
	if len(p.Models) > 0 {
		info.DefaultModel = p.Models[0]
	}
	return info
}

func (p *Provider) text(prompt, model string) string {
	if p.Reply != "" {
		return p.Reply
	}
	return model + ": " + prompt
}

func (p *Provider) Generate(_ context.Context, prompt string, opts plugin.GenerateOptions) (string, error) {
	p.record(Call{Prompt: prompt, Model: opts.Model})
	if p.Err != nil {
		return "", p.Err
	}
	return p.text(prompt, opts.Model), nil
}

func (p *Provider) GenerateStream(_ context.Context, prompt string, opts plugin.GenerateOptions) (plugin.Stream, error) {
	p.record(Call{Prompt: prompt, Model: opts.Model, Stream: true})
	if p.Err != nil {
		return nil, p.Err
	}
	return plugin.SliceStream(Fragments(p.text(prompt, opts.Model))), nil
}

func (p *Provider) record(c Call) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Fragments splits s into word fragments that keep their leading space.
func Fragments(s string) []string {
	words := strings.SplitAfter(s, " ")
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// Agent is a mock agent that echoes the task back as its suggestion.
type Agent struct {
	ID  string
	Err error
}

func (a *Agent) Name() string { return a.ID }

func (a *Agent) Info() plugin.AgentInfo {
	return plugin.AgentInfo{
		Name:         a.ID,
		Description:  "mock agent",
		Version:      "0.1.0",
		Capabilities: map[string]bool{"llm_integration": false},
	}
}

func (a *Agent) Execute(_ context.Context, task string, taskCtx map[string]any) (plugin.TaskResult, error) {
	if a.Err != nil {
		return plugin.TaskResult{}, a.Err
	}
	if taskCtx == nil {
		taskCtx = map[string]any{}
	}
	return plugin.TaskResult{Suggestion: task, Output: task, Success: true, Context: taskCtx}, nil
}

// Tool is a mock tool returning its input.
type Tool struct {
	ID string
}

func (t *Tool) Name() string { return t.ID }

func (t *Tool) Info() plugin.ToolInfo {
	return plugin.ToolInfo{Name: t.ID, Description: "mock tool", Version: "0.1.0"}
}

func (t *Tool) Execute(_ context.Context, input map[string]any) (map[string]any, error) {
	return input, nil
}
