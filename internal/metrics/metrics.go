package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	PromptsTotal    *prometheus.CounterVec
	PromptLatency   *prometheus.HistogramVec
	CostUSD         *prometheus.CounterVec
	StreamFragments *prometheus.CounterVec
	Fallbacks       *prometheus.CounterVec
	PluginLoads     *prometheus.CounterVec
	AgentTasks      *prometheus.CounterVec
	ProviderHealth  *prometheus.GaugeVec
	RateLimited     prometheus.Counter
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		PromptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chitti_prompts_total",
			Help: "Total prompts dispatched to providers",
		}, []string{"provider", "model", "mode", "status"}),
		PromptLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chitti_prompt_latency_ms",
			Help:    "Prompt latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"provider", "model", "mode"}),
		CostUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chitti_estimated_cost_usd_total",
			Help: "Estimated USD cost derived from provider pricing tables",
		}, []string{"provider", "model"}),
		StreamFragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chitti_stream_fragments_total",
			Help: "Text fragments delivered to streaming clients",
		}, []string{"provider", "model"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chitti_provider_fallbacks_total",
			Help: "Model fallbacks triggered by provider throttling",
		}, []string{"provider", "from_model", "to_model"}),
		PluginLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chitti_plugin_loads_total",
			Help: "Plugin load attempts by category and outcome",
		}, []string{"category", "status"}),
		AgentTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chitti_agent_tasks_total",
			Help: "Agent task executions",
		}, []string{"agent", "status"}),
		ProviderHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chitti_provider_health",
			Help: "Provider health state (0 healthy, 1 degraded, 2 down)",
		}, []string{"provider"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chitti_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}),
	}
	reg.MustRegister(m.PromptsTotal, m.PromptLatency, m.CostUSD, m.StreamFragments,
		m.Fallbacks, m.PluginLoads, m.AgentTasks, m.ProviderHealth, m.RateLimited)
	return m
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (m *Registry) Gatherer() prometheus.Gatherer { return m.reg }
