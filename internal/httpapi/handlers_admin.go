package httpapi

import (
	"net/http"

	"github.com/jordanhubbard/chitti/internal/health"
	"github.com/jordanhubbard/chitti/internal/store"
)

// RequestLogsHandler handles GET /admin/v1/logs?provider=&model=&limit=N&offset=N
func RequestLogsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			WriteJSON(w, http.StatusOK, map[string]any{"logs": []any{}})
			return
		}
		limit, offset := parsePagination(r)
		logs, err := d.Store.ListRequestLogs(r.Context(), store.RequestFilter{
			Provider: r.URL.Query().Get("provider"),
			Model:    r.URL.Query().Get("model"),
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			jsonError(w, "store error: "+err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if logs == nil {
			logs = []store.RequestLog{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"logs": logs, "limit": limit, "offset": offset})
	}
}

// AuditLogsHandler handles GET /admin/v1/audit?limit=N&offset=N
func AuditLogsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			WriteJSON(w, http.StatusOK, map[string]any{"logs": []any{}})
			return
		}
		limit, offset := parsePagination(r)
		logs, err := d.Store.ListAuditLogs(r.Context(), limit, offset)
		if err != nil {
			jsonError(w, "store error: "+err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if logs == nil {
			logs = []store.AuditEntry{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"logs": logs, "limit": limit, "offset": offset})
	}
}

// UsageHandler handles GET /admin/v1/usage: per provider/model totals.
func UsageHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			WriteJSON(w, http.StatusOK, map[string]any{"usage": []any{}})
			return
		}
		usage, err := d.Store.SummarizeUsage(r.Context())
		if err != nil {
			jsonError(w, "store error: "+err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if usage == nil {
			usage = []store.UsageSummary{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"usage": usage})
	}
}

// ProviderHealthHandler handles GET /admin/v1/health. Every registered
// provider is listed; providers without traffic report healthy.
func ProviderHealthHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		out := []health.Stats{}
		if d.Health != nil {
			for _, name := range d.Service.ListProviders() {
				out = append(out, d.Health.Get(name))
			}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"providers": out})
	}
}
