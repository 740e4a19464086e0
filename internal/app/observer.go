package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jordanhubbard/chitti/internal/events"
	"github.com/jordanhubbard/chitti/internal/health"
	"github.com/jordanhubbard/chitti/internal/metrics"
	"github.com/jordanhubbard/chitti/internal/plugin"
	"github.com/jordanhubbard/chitti/internal/registry"
	"github.com/jordanhubbard/chitti/internal/service"
	"github.com/jordanhubbard/chitti/internal/store"
)

const storeTimeout = 5 * time.Second

// Recorder fans dispatch outcomes out to metrics, provider health, the
// event bus and the store. Every sink is optional.
type Recorder struct {
	Registry *registry.Registry
	Metrics  *metrics.Registry
	Bus      *events.Bus
	Store    store.Store
	Health   *health.Tracker
	Logger   *slog.Logger
}

var _ service.Observer = (*Recorder)(nil)

func (rc *Recorder) logger() *slog.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return slog.Default()
}

// estimateTokens approximates a token count as one token per four characters.
func estimateTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}

// EstimateCost prices a dispatch with the provider's pricing table. Unknown
// providers or models cost nothing.
func (rc *Recorder) EstimateCost(provider, model string, promptChars, outputChars int) float64 {
	if rc.Registry == nil {
		return 0
	}
	p, err := rc.Registry.Provider(provider)
	if err != nil {
		return 0
	}
	price, ok := p.Info().Pricing[model]
	if !ok {
		return 0
	}
	in := float64(estimateTokens(promptChars)) / 1000 * price.InputCostPer1K
	out := float64(estimateTokens(outputChars)) / 1000 * price.OutputCostPer1K
	return in + out
}

func (rc *Recorder) Dispatched(d service.Dispatch) {
	mode := "generate"
	if d.Stream {
		mode = "stream"
	}
	status := "ok"
	var kind, msg string
	if d.Err != nil {
		status = "error"
		kind = string(plugin.KindOf(d.Err))
		msg = d.Err.Error()
	}
	latencyMs := float64(d.Latency) / float64(time.Millisecond)
	cost := rc.EstimateCost(d.Provider, d.Model, d.PromptChars, d.OutputChars)

	if rc.Metrics != nil {
		rc.Metrics.PromptsTotal.WithLabelValues(d.Provider, d.Model, mode, status).Inc()
		rc.Metrics.PromptLatency.WithLabelValues(d.Provider, d.Model, mode).Observe(latencyMs)
		if cost > 0 {
			rc.Metrics.CostUSD.WithLabelValues(d.Provider, d.Model).Add(cost)
		}
		if d.Stream && d.Fragments > 0 {
			rc.Metrics.StreamFragments.WithLabelValues(d.Provider, d.Model).Add(float64(d.Fragments))
		}
	}

	if rc.Health != nil && d.Provider != "" {
		switch {
		case d.Err == nil:
			rc.Health.RecordSuccess(d.Provider, d.Latency)
		case providerFault(d.Err):
			rc.Health.RecordError(d.Provider, kind, msg)
		}
	}

	if rc.Bus != nil {
		typ := events.EventPromptSuccess
		if d.Err != nil {
			typ = events.EventPromptError
		}
		rc.Bus.Publish(events.Event{
			Type:      typ,
			Provider:  d.Provider,
			Model:     d.Model,
			Stream:    d.Stream,
			LatencyMs: latencyMs,
			ErrorKind: kind,
			ErrorMsg:  msg,
			RequestID: d.RequestID,
		})
	}

	if rc.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		err := rc.Store.LogRequest(ctx, store.RequestLog{
			RequestID:        d.RequestID,
			Provider:         d.Provider,
			Model:            d.Model,
			Mode:             mode,
			LatencyMs:        d.Latency.Milliseconds(),
			PromptChars:      d.PromptChars,
			OutputChars:      d.OutputChars,
			EstimatedCostUSD: cost,
			Success:          d.Err == nil,
			ErrorKind:        kind,
		})
		warnOnErr(rc.logger(), "log_request", err)
	}

	attrs := []any{
		slog.String("request_id", d.RequestID),
		slog.String("provider", d.Provider),
		slog.String("model", d.Model),
		slog.String("mode", mode),
		slog.Float64("latency_ms", latencyMs),
	}
	if d.Err != nil {
		rc.logger().Warn("prompt failed", append(attrs, slog.String("error_kind", kind), slog.String("error", msg))...)
		return
	}
	rc.logger().Info("prompt dispatched", append(attrs, slog.Int("fragments", d.Fragments))...)
}

func (rc *Recorder) AgentExecuted(agent string, latency time.Duration, err error) {
	status := "ok"
	var kind, msg string
	if err != nil {
		status = "error"
		kind = string(plugin.KindOf(err))
		msg = err.Error()
	}
	if rc.Metrics != nil {
		rc.Metrics.AgentTasks.WithLabelValues(agent, status).Inc()
	}
	if rc.Bus != nil {
		rc.Bus.Publish(events.Event{
			Type:      events.EventAgentExecuted,
			Agent:     agent,
			LatencyMs: float64(latency) / float64(time.Millisecond),
			ErrorKind: kind,
			ErrorMsg:  msg,
		})
	}
	rc.logger().Info("agent task finished",
		slog.String("agent", agent),
		slog.String("status", status),
		slog.Duration("latency", latency),
	)
}

func (rc *Recorder) DefaultsChanged(s service.Settings) {
	if rc.Bus != nil {
		rc.Bus.Publish(events.Event{Type: events.EventDefaultsChanged, Provider: s.Provider, Model: s.Model})
	}
	rc.Audit("defaults.changed", s.Provider, "model="+s.Model)
	rc.logger().Info("default settings changed", slog.String("provider", s.Provider), slog.String("model", s.Model))
}

// Audit records an administrative action. Without a store it is a no-op.
func (rc *Recorder) Audit(action, resource, detail string) {
	if rc.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	warnOnErr(rc.logger(), "log_audit", rc.Store.LogAudit(ctx, store.AuditEntry{
		Action:   action,
		Resource: resource,
		Detail:   detail,
	}))
}

// FallbackHook returns a hook reporting model switches of provider.
func (rc *Recorder) FallbackHook(provider string) func(from, to string, cause error) {
	return func(from, to string, cause error) {
		if rc.Metrics != nil {
			rc.Metrics.Fallbacks.WithLabelValues(provider, from, to).Inc()
		}
		if rc.Bus != nil {
			rc.Bus.Publish(events.Event{
				Type:      events.EventModelFallback,
				Provider:  provider,
				FromModel: from,
				ToModel:   to,
				ErrorMsg:  errString(cause),
			})
		}
		rc.logger().Warn("model throttled, falling back",
			slog.String("provider", provider),
			slog.String("from_model", from),
			slog.String("to_model", to),
		)
	}
}

// providerFault reports whether err reflects on the provider rather than
// on the request or the caller.
func providerFault(err error) bool {
	switch plugin.KindOf(err) {
	case plugin.KindValidation, plugin.KindNotFound, plugin.KindPrecondition:
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// warnOnErr logs a warning if a background store operation fails.
func warnOnErr(logger *slog.Logger, op string, err error) {
	if err != nil {
		logger.Warn("store operation failed", slog.String("op", op), slog.String("error", err.Error()))
	}
}
