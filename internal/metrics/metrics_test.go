package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	r := New()
	if r == nil || r.reg == nil {
		t.Fatal("expected initialised registry")
	}
	if r.PromptsTotal == nil || r.PromptLatency == nil || r.PluginLoads == nil || r.Fallbacks == nil {
		t.Fatal("expected all collectors to be created")
	}
}

func TestCountersAccumulate(t *testing.T) {
	r := New()
	r.PromptsTotal.WithLabelValues("mock", "model1", "sync", "ok").Inc()
	r.PromptsTotal.WithLabelValues("mock", "model1", "sync", "ok").Inc()
	r.PluginLoads.WithLabelValues("providers", "error").Inc()

	if got := testutil.ToFloat64(r.PromptsTotal.WithLabelValues("mock", "model1", "sync", "ok")); got != 2 {
		t.Errorf("prompts_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.PluginLoads.WithLabelValues("providers", "error")); got != 1 {
		t.Errorf("plugin_loads_total = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.Fallbacks.WithLabelValues("anthropic", "a", "b").Inc()
	r.PromptLatency.WithLabelValues("mock", "m", "stream").Observe(42)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{"chitti_provider_fallbacks_total", "chitti_prompt_latency_ms"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %s in metrics output", want)
		}
	}
}
