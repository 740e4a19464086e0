// Package plugin defines the capability contracts every provider, agent and
// tool plugin must satisfy, together with the shared error taxonomy.
package plugin

import (
	"context"
	"io"
)

// Pricing is the per-model cost table, in USD per 1000 tokens.
type Pricing struct {
	InputCostPer1K  float64 `json:"input_cost_per_1k"`
	OutputCostPer1K float64 `json:"output_cost_per_1k"`
}

// Capabilities is the fixed capability flag set of a provider.
type Capabilities struct {
	Streaming       bool `json:"streaming"`
	FunctionCalling bool `json:"function_calling"`
	Vision          bool `json:"vision"`
}

// ModelInfo describes a provider's model catalog.
type ModelInfo struct {
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	Models       []string           `json:"models"`
	DefaultModel string             `json:"default_model"`
	Pricing      map[string]Pricing `json:"pricing"`
	Capabilities Capabilities       `json:"capabilities"`
}

// HasModel reports whether id is part of the catalog.
func (m ModelInfo) HasModel(id string) bool {
	for _, candidate := range m.Models {
		if candidate == id {
			return true
		}
	}
	return false
}

// Validate checks the catalog invariants: non-empty model list and a default
// model that is an element of it.
func (m ModelInfo) Validate() error {
	if len(m.Models) == 0 {
		return Validationf("provider %q exposes no models", m.Name)
	}
	if m.DefaultModel != "" && !m.HasModel(m.DefaultModel) {
		return Validationf("provider %q default model %q is not in its catalog", m.Name, m.DefaultModel)
	}
	return nil
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	Model     string
	MaxTokens int
}

// Stream is a lazy, single-pass sequence of generated text fragments.
// Recv returns io.EOF once the provider signals completion. Close releases
// the underlying connection and may be called at any point, including before
// the stream is drained.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider wraps a hosted text-generation capability.
type Provider interface {
	Name() string
	Info() ModelInfo
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (Stream, error)
}

// AgentInfo is the descriptive metadata of an agent.
type AgentInfo struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Version      string          `json:"version"`
	Capabilities map[string]bool `json:"capabilities"`
}

// TaskResult is what an agent returns from Execute.
type TaskResult struct {
	Suggestion string         `json:"suggestion"`
	Output     string         `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	Success    bool           `json:"success"`
	Context    map[string]any `json:"context"`
}

// Agent implements a task-specific workflow.
type Agent interface {
	Name() string
	Info() AgentInfo
	Execute(ctx context.Context, task string, taskCtx map[string]any) (TaskResult, error)
}

// ToolInfo is the descriptive metadata of a tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Tool is a shared utility plugin.
type Tool interface {
	Name() string
	Info() ToolInfo
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Dispatcher is the slice of the dispatch layer agents depend on to reach an
// LLM without importing the service package.
type Dispatcher interface {
	Complete(ctx context.Context, prompt, provider, model string) (string, error)
}

// Collect drains s and returns the concatenated fragments. s is closed on
// return.
func Collect(s Stream) (string, error) {
	defer func() { _ = s.Close() }()
	var out []byte
	for {
		frag, err := s.Recv()
		if err == io.EOF {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, frag...)
	}
}
