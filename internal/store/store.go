// Package store persists the request and audit trail of a chitti process.
// Registry state is deliberately not stored; it is rebuilt from plugin
// sources at every start.
package store

import (
	"context"
	"time"
)

// Store is the persistence interface used by the web API and the dispatch
// observer.
type Store interface {
	// Request log
	LogRequest(ctx context.Context, entry RequestLog) error
	ListRequestLogs(ctx context.Context, f RequestFilter) ([]RequestLog, error)
	SummarizeUsage(ctx context.Context) ([]UsageSummary, error)

	// Audit log
	LogAudit(ctx context.Context, entry AuditEntry) error
	ListAuditLogs(ctx context.Context, limit, offset int) ([]AuditEntry, error)

	// Schema lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// RequestLog is one dispatched prompt.
type RequestLog struct {
	ID               int64     `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	RequestID        string    `json:"request_id,omitempty"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	Mode             string    `json:"mode"` // "generate" or "stream"
	LatencyMs        int64     `json:"latency_ms"`
	PromptChars      int       `json:"prompt_chars"`
	OutputChars      int       `json:"output_chars"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
	Success          bool      `json:"success"`
	ErrorKind        string    `json:"error_kind,omitempty"`
}

// RequestFilter narrows ListRequestLogs. Zero values match everything.
type RequestFilter struct {
	Provider string
	Model    string
	Limit    int
	Offset   int
}

// UsageSummary aggregates the request log per provider and model.
type UsageSummary struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Requests     int64   `json:"requests"`
	Errors       int64   `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// AuditEntry records a settings change or plugin lifecycle event.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`   // e.g. "defaults.provider", "plugin.failed"
	Resource  string    `json:"resource"` // e.g. "anthropic"
	Detail    string    `json:"detail,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}
