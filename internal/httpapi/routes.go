package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jordanhubbard/chitti/internal/events"
	"github.com/jordanhubbard/chitti/internal/health"
	"github.com/jordanhubbard/chitti/internal/metrics"
	"github.com/jordanhubbard/chitti/internal/plugin"
	"github.com/jordanhubbard/chitti/internal/service"
	"github.com/jordanhubbard/chitti/internal/store"
)

const apiTitle = "Chitti API"

type Dependencies struct {
	Service  *service.Service
	Metrics  *metrics.Registry
	Store    store.Store // nil disables the log endpoints' backing data
	EventBus *events.Bus
	Health   *health.Tracker
	Version  string
	Logger   *slog.Logger

	// Limit wraps the routes that start provider calls or agent work.
	// Nil means unlimited.
	Limit func(http.Handler) http.Handler
}

func (d Dependencies) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Dependencies) limit() func(http.Handler) http.Handler {
	if d.Limit != nil {
		return d.Limit
	}
	return func(next http.Handler) http.Handler { return next }
}

// MountRoutes registers the web API on r. Agents implementing
// plugin.RouteMounter get their own subtree under /agents/{name}; it must
// be called after plugins are loaded.
func MountRoutes(r chi.Router, d Dependencies) {
	r.Get("/", RootHandler(d))
	r.Get("/healthz", HealthHandler(d))

	limited := r.With(d.limit())
	limited.Post("/prompt", PromptHandler(d))

	r.Get("/providers", ProvidersListHandler(d))
	r.Get("/providers/{name}", ProviderInfoHandler(d))

	r.Get("/agents", AgentsListHandler(d))
	for _, a := range d.Service.Registry().AgentList() {
		m, ok := a.(plugin.RouteMounter)
		if !ok {
			continue
		}
		name := a.Name()
		fixed := func(*http.Request) string { return name }
		sub := chi.NewRouter()
		sub.Use(d.limit())
		sub.Get("/", AgentInfoHandler(d, fixed))
		sub.Post("/execute", AgentExecuteHandler(d, fixed))
		m.MountRoutes(sub)
		r.Mount("/agents/"+name, sub)
		d.logger().Debug("mounted agent routes", slog.String("agent", name))
	}
	r.Get("/agents/{name}", AgentInfoHandler(d, urlName))
	limited.Post("/agents/{name}/execute", AgentExecuteHandler(d, urlName))

	r.Get("/tools", ToolsListHandler(d))
	r.Get("/tools/{name}", ToolInfoHandler(d))
	limited.Post("/tools/{name}/execute", ToolExecuteHandler(d))

	r.Route("/settings/default", func(r chi.Router) {
		r.Get("/", DefaultSettingsHandler(d))
		r.Post("/provider", SetDefaultProviderHandler(d))
		r.Post("/model", SetDefaultModelHandler(d))
	})

	r.Route("/admin/v1", func(r chi.Router) {
		r.Get("/logs", RequestLogsHandler(d))
		r.Get("/audit", AuditLogsHandler(d))
		r.Get("/usage", UsageHandler(d))
		r.Get("/health", ProviderHealthHandler(d))
		if d.EventBus != nil {
			r.Get("/events", SSEHandler(d.EventBus))
		}
	})

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
}

func urlName(r *http.Request) string { return chi.URLParam(r, "name") }

func RootHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"title":       apiTitle,
			"version":     d.Version,
			"description": "AI agent ecosystem",
		})
	}
}

// HealthHandler reports 503 until at least one provider is registered.
func HealthHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		providers := len(d.Service.ListProviders())
		body := map[string]any{
			"status":    "ok",
			"providers": providers,
			"agents":    len(d.Service.ListAgents()),
			"tools":     len(d.Service.ListTools()),
		}
		status := http.StatusOK
		if providers == 0 {
			body["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}
		WriteJSON(w, status, body)
	}
}
