package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, rps float64, burst int, opts ...Option) (*Limiter, *clock) {
	t.Helper()
	l := New(rps, burst, opts...)
	t.Cleanup(l.Stop)
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l.now = c.now
	return l, c
}

func TestAllowUpToBurst(t *testing.T) {
	l, _ := newTestLimiter(t, 1, 5)

	for i := range 5 {
		if ok, _ := l.allow("10.0.0.1"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, wait := l.allow("10.0.0.1")
	if ok {
		t.Fatal("request 6 should be denied")
	}
	if wait != time.Second {
		t.Errorf("wait = %v, want 1s", wait)
	}
}

func TestRefill(t *testing.T) {
	l, c := newTestLimiter(t, 10, 2)

	l.allow("k")
	l.allow("k")
	if ok, _ := l.allow("k"); ok {
		t.Fatal("should be denied after exhaustion")
	}

	c.advance(100 * time.Millisecond)
	if ok, _ := l.allow("k"); !ok {
		t.Fatal("one token should have refilled")
	}

	c.advance(time.Hour)
	for range 2 {
		if ok, _ := l.allow("k"); !ok {
			t.Fatal("refill should be capped at burst, not below it")
		}
	}
	if ok, _ := l.allow("k"); ok {
		t.Fatal("refill must not exceed burst")
	}
}

func TestSeparateClients(t *testing.T) {
	l, _ := newTestLimiter(t, 1, 1)

	if ok, _ := l.allow("a"); !ok {
		t.Fatal("a should be allowed")
	}
	if ok, _ := l.allow("a"); ok {
		t.Fatal("a should be denied")
	}
	if ok, _ := l.allow("b"); !ok {
		t.Fatal("b has its own bucket")
	}
}

func TestEvictOldest(t *testing.T) {
	l, c := newTestLimiter(t, 1, 1, WithMaxKeys(2))

	l.allow("first")
	c.advance(time.Second)
	l.allow("second")
	c.advance(time.Second)
	l.allow("third")

	if _, ok := l.buckets["first"]; ok {
		t.Error("oldest client should have been evicted")
	}
	if len(l.buckets) != 2 {
		t.Errorf("buckets = %d, want 2", len(l.buckets))
	}
}

func TestPrune(t *testing.T) {
	l, c := newTestLimiter(t, 1, 1)
	l.allow("idle")
	c.advance(idleAfter + time.Second)
	l.allow("fresh")
	l.prune()

	if _, ok := l.buckets["idle"]; ok {
		t.Error("idle client should be pruned")
	}
	if _, ok := l.buckets["fresh"]; !ok {
		t.Error("fresh client should be kept")
	}
}

func TestMiddleware(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_rate_limited_total"})
	l, _ := newTestLimiter(t, 0.5, 1, WithCounter(counter))

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/prompt", nil)
	req.RemoteAddr = "192.0.2.7:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rec.Code)
	}

	// Same host on another port shares the bucket.
	req.RemoteAddr = "192.0.2.7:6666"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}
	if !strings.Contains(rec.Body.String(), `"error_code":"RATE_LIMITED"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Errorf("counter = %v", got)
	}
}

func TestStopIdempotent(t *testing.T) {
	l := New(1, 1)
	l.Stop()
	l.Stop()
}
