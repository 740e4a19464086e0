package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jordanhubbard/chitti/internal/agents/bash"
	"github.com/jordanhubbard/chitti/internal/loader"
	"github.com/jordanhubbard/chitti/internal/plugin"
	"github.com/jordanhubbard/chitti/internal/providers/anthropic"
	"github.com/jordanhubbard/chitti/internal/providers/echo"
	"github.com/jordanhubbard/chitti/internal/providers/openai"
	"github.com/jordanhubbard/chitti/internal/providers/vllm"
	"github.com/jordanhubbard/chitti/internal/tools/sysinfo"
)

// PluginDeps is what the built-in plugin factories need from the host.
type PluginDeps struct {
	Config     Config
	Dispatcher plugin.Dispatcher // reached by agents
	Recorder   *Recorder
	Transport  http.RoundTripper // nil means http.DefaultTransport
	Logger     *slog.Logger
}

func (d PluginDeps) timeout(cfg loader.Config) time.Duration {
	return cfg.Duration("timeout", time.Duration(d.Config.ProviderTimeoutSecs)*time.Second)
}

func (d PluginDeps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewCatalog registers a factory for every built-in plugin type. Manifest
// entries refer to these types by name.
func NewCatalog(d PluginDeps) *loader.Catalog {
	c := loader.NewCatalog()
	c.Register("anthropic", d.newAnthropic)
	c.Register("openai", d.newOpenAI)
	c.Register("vllm", d.newVLLM)
	c.Register("echo", func(_ context.Context, cfg loader.Config) (any, error) {
		return echo.New(
			echo.WithName(cfg.String("name", echo.DefaultName)),
			echo.WithDelay(cfg.Duration("delay", 0)),
		), nil
	})
	c.Register("bash", d.newBash)
	c.Register("sysinfo", func(context.Context, loader.Config) (any, error) {
		return sysinfo.New(), nil
	})
	return c
}

func (d PluginDeps) newAnthropic(_ context.Context, cfg loader.Config) (any, error) {
	key := cfg.String("api_key", d.Config.AnthropicAPIKey)
	if key == "" {
		return nil, plugin.Preconditionf("anthropic: api_key is not configured (set CHITTI_ANTHROPIC_API_KEY)")
	}
	name := cfg.String("name", anthropic.DefaultName)
	policy := anthropic.FallbackPolicy{
		Models:     cfg.Strings("fallback_models"),
		Backoff:    cfg.Duration("backoff", time.Duration(d.Config.FallbackBackoffMs)*time.Millisecond),
		MaxBackoff: cfg.Duration("max_backoff", 8*time.Second),
	}
	opts := []anthropic.Option{
		anthropic.WithName(name),
		anthropic.WithTimeout(d.timeout(cfg)),
		anthropic.WithFallbackPolicy(policy),
		anthropic.WithLogger(d.logger()),
	}
	if models := cfg.Strings("models"); len(models) > 0 {
		opts = append(opts, anthropic.WithModels(models...))
	}
	if n := cfg.Int("max_tokens", 0); n > 0 {
		opts = append(opts, anthropic.WithMaxTokens(n))
	}
	if strings.EqualFold(cfg.String("partial_results", "keep"), "fail") {
		opts = append(opts, anthropic.WithPartialResultPolicy(anthropic.FailOnTrailingError))
	}
	if d.Transport != nil {
		opts = append(opts, anthropic.WithTransport(d.Transport))
	}
	if d.Recorder != nil {
		opts = append(opts, anthropic.WithFallbackHook(d.Recorder.FallbackHook(name)))
	}
	return anthropic.New(key, cfg.String("base_url", d.Config.AnthropicBaseURL), opts...), nil
}

func (d PluginDeps) newOpenAI(_ context.Context, cfg loader.Config) (any, error) {
	key := cfg.String("api_key", d.Config.OpenAIAPIKey)
	if key == "" {
		return nil, plugin.Preconditionf("openai: api_key is not configured (set CHITTI_OPENAI_API_KEY)")
	}
	opts := []openai.Option{
		openai.WithName(cfg.String("name", openai.DefaultName)),
		openai.WithTimeout(d.timeout(cfg)),
	}
	if models := cfg.Strings("models"); len(models) > 0 {
		opts = append(opts, openai.WithModels(models...))
	}
	if d.Transport != nil {
		opts = append(opts, openai.WithTransport(d.Transport))
	}
	return openai.New(key, cfg.String("base_url", d.Config.OpenAIBaseURL), opts...), nil
}

func (d PluginDeps) newVLLM(_ context.Context, cfg loader.Config) (any, error) {
	endpoints := cfg.Strings("endpoints")
	if len(endpoints) == 0 {
		endpoints = d.Config.VLLMEndpoints
	}
	models := cfg.Strings("models")
	if len(models) == 0 {
		models = d.Config.VLLMModels
	}
	if len(endpoints) == 0 {
		return nil, plugin.Preconditionf("vllm: no endpoints configured (set CHITTI_VLLM_ENDPOINTS)")
	}
	opts := []vllm.Option{
		vllm.WithName(cfg.String("name", vllm.DefaultName)),
		vllm.WithTimeout(d.timeout(cfg)),
		vllm.WithEndpoints(endpoints...),
	}
	if d.Transport != nil {
		opts = append(opts, vllm.WithTransport(d.Transport))
	}
	return vllm.New(endpoints[0], models, opts...), nil
}

func (d PluginDeps) newBash(_ context.Context, cfg loader.Config) (any, error) {
	if d.Dispatcher == nil {
		return nil, plugin.Preconditionf("bash: no dispatcher available")
	}
	return bash.New(d.Dispatcher,
		bash.WithModel(cfg.String("provider", ""), cfg.String("model", "")),
		bash.WithShell(cfg.String("shell", "sh")),
		bash.WithHistoryLimit(cfg.Int("history", bash.DefaultHistoryMax)),
		bash.WithCommandTimeout(cfg.Duration("command_timeout", 0)),
		bash.WithLogger(d.logger()),
	), nil
}

// EnvSource declares the plugins implied by the environment: hosted
// providers whose credentials are set, the echo provider when nothing else
// is configured, the bash agent unless disabled, and the sysinfo tool.
func EnvSource(cfg Config, cat *loader.Catalog) loader.Source {
	entry := func(category loader.Category, typ string) loader.Entry {
		return loader.Entry{
			Name:     typ,
			Category: category,
			New: func(ctx context.Context) (any, error) {
				f, _ := cat.Lookup(typ)
				return f(ctx, loader.Config{})
			},
		}
	}

	var list []loader.Entry
	hosted := false
	if cfg.AnthropicAPIKey != "" {
		list = append(list, entry(loader.CategoryProviders, "anthropic"))
		hosted = true
	}
	if cfg.OpenAIAPIKey != "" {
		list = append(list, entry(loader.CategoryProviders, "openai"))
		hosted = true
	}
	if len(cfg.VLLMEndpoints) > 0 {
		list = append(list, entry(loader.CategoryProviders, "vllm"))
		hosted = true
	}
	if !hosted && cfg.PluginManifest == "" {
		list = append(list, entry(loader.CategoryProviders, "echo"))
	}
	if cfg.EnableBashAgent {
		list = append(list, entry(loader.CategoryAgents, "bash"))
	}
	list = append(list, entry(loader.CategoryTools, "sysinfo"))
	return loader.StaticSource{Label: "env", List: list}
}

// Sources returns the env source followed by the manifest source, if any.
func Sources(cfg Config, cat *loader.Catalog) []loader.Source {
	sources := []loader.Source{EnvSource(cfg, cat)}
	if cfg.PluginManifest != "" {
		sources = append(sources, loader.ManifestSource{Path: cfg.PluginManifest, Catalog: cat})
	}
	return sources
}
