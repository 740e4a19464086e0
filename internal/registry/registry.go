// Package registry holds the in-memory mapping of registered providers,
// agents and tools together with the selected defaults.
package registry

import (
	"sort"
	"sync"

	"github.com/jordanhubbard/chitti/internal/plugin"
)

// Registry is the single source of truth for which plugins exist and which
// defaults are selected. It is constructed explicitly and passed to its
// consumers; there is no package-level instance.
type Registry struct {
	mu sync.RWMutex

	providers       map[string]plugin.Provider
	agents          map[string]plugin.Agent
	tools           map[string]plugin.Tool
	defaultModels   map[string]string // provider name -> model id
	defaultProvider string            // "" = unset
}

func New() *Registry {
	return &Registry{
		providers:     make(map[string]plugin.Provider),
		agents:        make(map[string]plugin.Agent),
		tools:         make(map[string]plugin.Tool),
		defaultModels: make(map[string]string),
	}
}

// RegisterProvider inserts or replaces a provider. The first provider ever
// registered becomes the default provider, and the provider's default model
// is seeded with the first entry of its catalog.
func (r *Registry) RegisterProvider(p plugin.Provider) error {
	if p == nil {
		return plugin.Validationf("provider is nil")
	}
	name := p.Name()
	if name == "" {
		return plugin.Validationf("provider has no name")
	}
	info := p.Info()
	if err := info.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
	if r.defaultProvider == "" {
		r.defaultProvider = name
	}
	r.defaultModels[name] = info.Models[0]
	return nil
}

// RegisterAgent inserts or replaces an agent. Agents have no default.
func (r *Registry) RegisterAgent(a plugin.Agent) error {
	if a == nil {
		return plugin.Validationf("agent is nil")
	}
	name := a.Name()
	if name == "" {
		return plugin.Validationf("agent has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = a
	return nil
}

// RegisterTool inserts or replaces a tool.
func (r *Registry) RegisterTool(t plugin.Tool) error {
	if t == nil {
		return plugin.Validationf("tool is nil")
	}
	name := t.Name()
	if name == "" {
		return plugin.Validationf("tool has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
	return nil
}

// Provider looks a provider up by name. An empty name selects the current
// default provider.
func (r *Registry) Provider(name string) (plugin.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providerLocked(name)
}

func (r *Registry) providerLocked(name string) (plugin.Provider, error) {
	if name == "" {
		if r.defaultProvider == "" {
			return nil, plugin.Preconditionf("no default provider is set")
		}
		name = r.defaultProvider
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, plugin.NotFoundf("provider not found: %s", name)
	}
	return p, nil
}

func (r *Registry) Agent(name string) (plugin.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, plugin.NotFoundf("agent not found: %s", name)
	}
	return a, nil
}

func (r *Registry) Tool(name string) (plugin.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, plugin.NotFoundf("tool not found: %s", name)
	}
	return t, nil
}

// SetDefaultProvider selects the provider used when a request names none.
func (r *Registry) SetDefaultProvider(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return plugin.NotFoundf("provider not found: %s", name)
	}
	r.defaultProvider = name
	return nil
}

// SetDefaultModel overrides the default model of a provider. The model must
// be part of the provider's catalog.
func (r *Registry) SetDefaultModel(provider, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[provider]
	if !ok {
		return plugin.NotFoundf("provider not found: %s", provider)
	}
	if !p.Info().HasModel(model) {
		return plugin.Validationf("model %q is not offered by provider %q", model, provider)
	}
	r.defaultModels[provider] = model
	return nil
}

// DefaultModel returns the default model of a provider. An empty provider
// name resolves to the default provider. Without an explicit override the
// provider's own default model is returned.
func (r *Registry) DefaultModel(provider string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, err := r.providerLocked(provider)
	if err != nil {
		return "", err
	}
	if m, ok := r.defaultModels[p.Name()]; ok && m != "" {
		return m, nil
	}
	info := p.Info()
	if info.DefaultModel != "" {
		return info.DefaultModel, nil
	}
	return info.Models[0], nil
}

// DefaultProvider returns the selected default provider name, if any.
func (r *Registry) DefaultProvider() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultProvider, r.defaultProvider != ""
}

// Providers returns all registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.providers)
}

// Agents returns all registered agent names, sorted.
func (r *Registry) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.agents)
}

// Tools returns all registered tool names, sorted.
func (r *Registry) Tools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.tools)
}

// AgentList returns the registered agent values, sorted by name.
func (r *Registry) AgentList() []plugin.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]plugin.Agent, 0, len(r.agents))
	for _, name := range sortedKeys(r.agents) {
		out = append(out, r.agents[name])
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
