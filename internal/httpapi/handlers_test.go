package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jordanhubbard/chitti/internal/events"
	"github.com/jordanhubbard/chitti/internal/health"
	"github.com/jordanhubbard/chitti/internal/metrics"
	"github.com/jordanhubbard/chitti/internal/plugin"
	"github.com/jordanhubbard/chitti/internal/plugin/plugintest"
	"github.com/jordanhubbard/chitti/internal/ratelimit"
	"github.com/jordanhubbard/chitti/internal/registry"
	"github.com/jordanhubbard/chitti/internal/service"
	"github.com/jordanhubbard/chitti/internal/store"
)

// routedAgent is a mock agent that owns a GET /ping route.
type routedAgent struct {
	plugintest.Agent
}

func (a *routedAgent) MountRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"pong": a.ID})
	})
}

// brokenStream yields one fragment and then fails.
type brokenProvider struct {
	*plugintest.Provider
}

func (p *brokenProvider) GenerateStream(context.Context, string, plugin.GenerateOptions) (plugin.Stream, error) {
	return &failAfter{frags: []string{"partial "}, err: plugin.ProviderError("upstream reset", nil)}, nil
}

type failAfter struct {
	frags []string
	err   error
}

func (f *failAfter) Recv() (string, error) {
	if len(f.frags) == 0 {
		return "", f.err
	}
	s := f.frags[0]
	f.frags = f.frags[1:]
	return s, nil
}

func (f *failAfter) Close() error { return nil }

type testEnv struct {
	srv    *httptest.Server
	reg    *registry.Registry
	svc    *service.Service
	bus    *events.Bus
	store  *store.SQLiteStore
	health *health.Tracker
}

func setupTestServer(t *testing.T, withProviders bool) *testEnv {
	t.Helper()

	reg := registry.New()
	if withProviders {
		if err := reg.RegisterProvider(plugintest.NewProvider("mock", "m1", "m2")); err != nil {
			t.Fatalf("register provider: %v", err)
		}
		if err := reg.RegisterProvider(&brokenProvider{plugintest.NewProvider("broken", "b1")}); err != nil {
			t.Fatalf("register provider: %v", err)
		}
		if err := reg.SetDefaultProvider("mock"); err != nil {
			t.Fatalf("set default: %v", err)
		}
	}
	if err := reg.RegisterAgent(&plugintest.Agent{ID: "echoer"}); err != nil {
		t.Fatalf("register agent: %v", err)
	}
	if err := reg.RegisterAgent(&routedAgent{plugintest.Agent{ID: "router"}}); err != nil {
		t.Fatalf("register agent: %v", err)
	}
	if err := reg.RegisterTool(&plugintest.Tool{ID: "identity"}); err != nil {
		t.Fatalf("register tool: %v", err)
	}

	st, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{
		reg:    reg,
		svc:    service.New(reg),
		bus:    events.NewBus(),
		store:  st,
		health: health.NewTracker(health.DefaultConfig()),
	}
	r := chi.NewRouter()
	MountRoutes(r, Dependencies{
		Service:  env.svc,
		Metrics:  metrics.New(),
		Store:    st,
		EventBus: env.bus,
		Health:   env.health,
		Version:  "test",
	})
	env.srv = httptest.NewServer(r)
	t.Cleanup(env.srv.Close)
	return env
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Errorf("status = %d, want %d", resp.StatusCode, status)
	}
	body := decode[errorBody](t, resp)
	if body.ErrorCode != code {
		t.Errorf("error_code = %q, want %q (error %q)", body.ErrorCode, code, body.Error)
	}
}

func TestRoot(t *testing.T) {
	env := setupTestServer(t, true)
	body := decode[map[string]string](t, getURL(t, env.srv.URL+"/"))
	if body["title"] != "Chitti API" || body["version"] != "test" {
		t.Errorf("root = %v", body)
	}
}

func TestHealthz(t *testing.T) {
	env := setupTestServer(t, true)
	resp := getURL(t, env.srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["providers"] != float64(2) {
		t.Errorf("providers = %v", body["providers"])
	}

	empty := setupTestServer(t, false)
	resp = getURL(t, empty.srv.URL+"/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without providers, got %d", resp.StatusCode)
	}
}

func TestPromptNonStreaming(t *testing.T) {
	env := setupTestServer(t, true)

	resp := postJSON(t, env.srv.URL+"/prompt", `{"prompt":"hello there"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decode[service.PromptResponse](t, resp)
	if body.Response != "m1: hello there" {
		t.Errorf("response = %q", body.Response)
	}
	if body.Metadata["provider"] != "mock" || body.Metadata["model"] != "m1" {
		t.Errorf("metadata = %v", body.Metadata)
	}

	body = decode[service.PromptResponse](t, postJSON(t, env.srv.URL+"/prompt", `{"prompt":"x","provider":"mock","model":"m2"}`))
	if body.Response != "m2: x" {
		t.Errorf("explicit model response = %q", body.Response)
	}
}

func TestPromptErrors(t *testing.T) {
	env := setupTestServer(t, true)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"empty prompt", `{"prompt":"   "}`, http.StatusBadRequest, "VALIDATION"},
		{"bad json", `{"prompt":`, http.StatusBadRequest, "VALIDATION"},
		{"invalid provider name", `{"prompt":"x","provider":"no such!"}`, http.StatusBadRequest, "VALIDATION"},
		{"unknown provider", `{"prompt":"x","provider":"ghost"}`, http.StatusNotFound, "NOT_FOUND"},
		{"negative max tokens", `{"prompt":"x","max_tokens":-1}`, http.StatusBadRequest, "VALIDATION"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, postJSON(t, env.srv.URL+"/prompt", tc.body), tc.status, tc.code)
		})
	}
}

func TestPromptNoProviders(t *testing.T) {
	env := setupTestServer(t, false)
	expectError(t, postJSON(t, env.srv.URL+"/prompt", `{"prompt":"x"}`), http.StatusServiceUnavailable, "PRECONDITION")
}

func TestPromptProviderErrorMapping(t *testing.T) {
	env := setupTestServer(t, true)
	p := plugintest.NewProvider("throttled", "t1")
	p.Err = plugin.CapacityExhausted("all 1 models are throttled", nil)
	if err := env.reg.RegisterProvider(p); err != nil {
		t.Fatal(err)
	}
	expectError(t, postJSON(t, env.srv.URL+"/prompt", `{"prompt":"x","provider":"throttled"}`), http.StatusTooManyRequests, "CAPACITY_EXHAUSTED")

	p.Err = plugin.CredentialsExpired("refresh credentials", nil)
	expectError(t, postJSON(t, env.srv.URL+"/prompt", `{"prompt":"x","provider":"throttled"}`), http.StatusBadGateway, "CREDENTIALS_EXPIRED")
}

type sseFrame struct {
	event string
	data  string
}

func readSSE(t *testing.T, r io.Reader) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var cur sseFrame
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.data != "" || cur.event != "" {
				frames = append(frames, cur)
			}
			cur = sseFrame{}
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	return frames
}

func streamedText(t *testing.T, frames []sseFrame) string {
	t.Helper()
	var b strings.Builder
	for _, f := range frames {
		if f.event != "" {
			continue
		}
		var frag map[string]string
		if err := json.Unmarshal([]byte(f.data), &frag); err != nil {
			t.Fatalf("bad fragment %q: %v", f.data, err)
		}
		b.WriteString(frag["text"])
	}
	return b.String()
}

func TestPromptStreaming(t *testing.T) {
	env := setupTestServer(t, true)

	resp := postJSON(t, env.srv.URL+"/prompt?stream=true", `{"prompt":"one two three"}`)
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}
	if resp.Header.Get("X-Chitti-Model") != "m1" {
		t.Errorf("model header = %q", resp.Header.Get("X-Chitti-Model"))
	}
	frames := readSSE(t, resp.Body)
	if len(frames) < 2 {
		t.Fatalf("expected fragments and done, got %v", frames)
	}
	if got := streamedText(t, frames); got != "m1: one two three" {
		t.Errorf("streamed text = %q", got)
	}
	last := frames[len(frames)-1]
	if last.event != "done" || !strings.Contains(last.data, `"provider":"mock"`) {
		t.Errorf("last frame = %+v", last)
	}

	// The body flag selects streaming as well.
	resp2 := postJSON(t, env.srv.URL+"/prompt", `{"prompt":"a b","stream":true}`)
	defer resp2.Body.Close()
	if got := streamedText(t, readSSE(t, resp2.Body)); got != "m1: a b" {
		t.Errorf("body-flag streamed text = %q", got)
	}
}

func TestPromptStreamingErrors(t *testing.T) {
	env := setupTestServer(t, true)

	resp := postJSON(t, env.srv.URL+"/prompt?stream=true", `{"prompt":"x","provider":"broken"}`)
	defer resp.Body.Close()
	frames := readSSE(t, resp.Body)
	if got := streamedText(t, frames); got != "partial " {
		t.Errorf("partial text = %q", got)
	}
	last := frames[len(frames)-1]
	if last.event != "error" || !strings.Contains(last.data, "PROVIDER_ERROR") {
		t.Errorf("last frame = %+v", last)
	}

	// Failures before streaming starts keep their JSON status.
	expectError(t, postJSON(t, env.srv.URL+"/prompt?stream=true", `{"prompt":"x","provider":"ghost"}`), http.StatusNotFound, "NOT_FOUND")
	expectError(t, postJSON(t, env.srv.URL+"/prompt?stream=maybe", `{"prompt":"x"}`), http.StatusBadRequest, "VALIDATION")
}

func TestProviders(t *testing.T) {
	env := setupTestServer(t, true)

	names := decode[[]string](t, getURL(t, env.srv.URL+"/providers"))
	if fmt.Sprint(names) != "[broken mock]" {
		t.Errorf("providers = %v", names)
	}

	info := decode[plugin.ModelInfo](t, getURL(t, env.srv.URL+"/providers/mock"))
	if info.Name != "mock" || len(info.Models) != 2 || info.DefaultModel != "m1" {
		t.Errorf("info = %+v", info)
	}

	expectError(t, getURL(t, env.srv.URL+"/providers/ghost"), http.StatusNotFound, "NOT_FOUND")
	expectError(t, getURL(t, env.srv.URL+"/providers/bad.name"), http.StatusBadRequest, "VALIDATION")
}

func TestAgents(t *testing.T) {
	env := setupTestServer(t, true)

	names := decode[[]string](t, getURL(t, env.srv.URL+"/agents"))
	if fmt.Sprint(names) != "[echoer router]" {
		t.Errorf("agents = %v", names)
	}

	for _, name := range []string{"echoer", "router"} {
		info := decode[plugin.AgentInfo](t, getURL(t, env.srv.URL+"/agents/"+name))
		if info.Name != name {
			t.Errorf("info for %s = %+v", name, info)
		}
		res := decode[plugin.TaskResult](t, postJSON(t, env.srv.URL+"/agents/"+name+"/execute", `{"task":"do it","context":{"k":"v"}}`))
		if !res.Success || res.Suggestion != "do it" || res.Context["k"] != "v" {
			t.Errorf("execute %s = %+v", name, res)
		}
	}

	pong := decode[map[string]string](t, getURL(t, env.srv.URL+"/agents/router/ping"))
	if pong["pong"] != "router" {
		t.Errorf("agent-owned route = %v", pong)
	}

	expectError(t, getURL(t, env.srv.URL+"/agents/ghost"), http.StatusNotFound, "NOT_FOUND")
	expectError(t, postJSON(t, env.srv.URL+"/agents/echoer/execute", `{"task":""}`), http.StatusBadRequest, "VALIDATION")
}

func TestTools(t *testing.T) {
	env := setupTestServer(t, true)

	names := decode[[]string](t, getURL(t, env.srv.URL+"/tools"))
	if fmt.Sprint(names) != "[identity]" {
		t.Errorf("tools = %v", names)
	}
	info := decode[plugin.ToolInfo](t, getURL(t, env.srv.URL+"/tools/identity"))
	if info.Name != "identity" {
		t.Errorf("tool info = %+v", info)
	}

	out := decode[map[string]any](t, postJSON(t, env.srv.URL+"/tools/identity/execute", `{"a":1}`))
	if out["a"] != float64(1) {
		t.Errorf("tool output = %v", out)
	}
	empty := decode[map[string]any](t, postJSON(t, env.srv.URL+"/tools/identity/execute", ``))
	if len(empty) != 0 {
		t.Errorf("empty input output = %v", empty)
	}
	expectError(t, postJSON(t, env.srv.URL+"/tools/identity/execute", `[1,2]`), http.StatusBadRequest, "VALIDATION")
	expectError(t, postJSON(t, env.srv.URL+"/tools/ghost/execute", `{}`), http.StatusNotFound, "NOT_FOUND")
}

func TestDefaultSettings(t *testing.T) {
	env := setupTestServer(t, true)

	s := decode[service.Settings](t, getURL(t, env.srv.URL+"/settings/default"))
	if s.Provider != "mock" || s.Model != "m1" {
		t.Errorf("settings = %+v", s)
	}

	resp := postJSON(t, env.srv.URL+"/settings/default/model", `{"provider":"mock","model":"m2"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set model status = %d", resp.StatusCode)
	}
	resp = postJSON(t, env.srv.URL+"/settings/default/provider", `{"provider":"broken"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set provider status = %d", resp.StatusCode)
	}

	s = decode[service.Settings](t, getURL(t, env.srv.URL+"/settings/default"))
	if s.Provider != "broken" || s.Model != "b1" {
		t.Errorf("settings after change = %+v", s)
	}
	m, _ := env.reg.DefaultModel("mock")
	if m != "m2" {
		t.Errorf("mock default model = %q", m)
	}

	expectError(t, postJSON(t, env.srv.URL+"/settings/default/provider", `{"provider":"ghost"}`), http.StatusNotFound, "NOT_FOUND")
	expectError(t, postJSON(t, env.srv.URL+"/settings/default/model", `{"provider":"mock","model":"nope"}`), http.StatusBadRequest, "VALIDATION")
	expectError(t, postJSON(t, env.srv.URL+"/settings/default/model", `{"provider":"mock"}`), http.StatusBadRequest, "VALIDATION")

	empty := setupTestServer(t, false)
	expectError(t, getURL(t, empty.srv.URL+"/settings/default"), http.StatusServiceUnavailable, "PRECONDITION")
}

func TestAdminLogs(t *testing.T) {
	env := setupTestServer(t, true)
	ctx := context.Background()
	for _, e := range []store.RequestLog{
		{RequestID: "r1", Provider: "mock", Model: "m1", Success: true, LatencyMs: 10},
		{RequestID: "r2", Provider: "broken", Model: "b1", ErrorKind: "PROVIDER_ERROR"},
	} {
		if err := env.store.LogRequest(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := env.store.LogAudit(ctx, store.AuditEntry{Action: "defaults.provider", Resource: "mock"}); err != nil {
		t.Fatal(err)
	}

	logs := decode[struct {
		Logs []store.RequestLog `json:"logs"`
	}](t, getURL(t, env.srv.URL+"/admin/v1/logs?provider=mock"))
	if len(logs.Logs) != 1 || logs.Logs[0].RequestID != "r1" {
		t.Errorf("filtered logs = %+v", logs.Logs)
	}

	audit := decode[struct {
		Logs []store.AuditEntry `json:"logs"`
	}](t, getURL(t, env.srv.URL+"/admin/v1/audit"))
	if len(audit.Logs) != 1 || audit.Logs[0].Action != "defaults.provider" {
		t.Errorf("audit = %+v", audit.Logs)
	}

	usage := decode[struct {
		Usage []store.UsageSummary `json:"usage"`
	}](t, getURL(t, env.srv.URL+"/admin/v1/usage"))
	if len(usage.Usage) != 2 {
		t.Errorf("usage = %+v", usage.Usage)
	}
}

func TestAdminLogsWithoutStore(t *testing.T) {
	r := chi.NewRouter()
	MountRoutes(r, Dependencies{Service: service.New(registry.New())})
	for _, path := range []string{"/admin/v1/logs", "/admin/v1/audit", "/admin/v1/usage", "/admin/v1/health"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/metrics without registry = %d, want 404", rec.Code)
	}
}

func TestProviderHealth(t *testing.T) {
	env := setupTestServer(t, true)
	env.health.RecordError("broken", "PROVIDER_ERROR", "reset")
	env.health.RecordError("broken", "PROVIDER_ERROR", "reset")

	body := decode[struct {
		Providers []health.Stats `json:"providers"`
	}](t, getURL(t, env.srv.URL+"/admin/v1/health"))
	if len(body.Providers) != 2 {
		t.Fatalf("providers = %+v", body.Providers)
	}
	if body.Providers[0].Provider != "broken" || body.Providers[0].State != health.StateDegraded {
		t.Errorf("broken = %+v", body.Providers[0])
	}
	if body.Providers[1].Provider != "mock" || body.Providers[1].State != health.StateHealthy {
		t.Errorf("mock = %+v", body.Providers[1])
	}
}

func TestRateLimitedRoutes(t *testing.T) {
	reg := registry.New()
	if err := reg.RegisterProvider(plugintest.NewProvider("mock", "m1")); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterTool(&plugintest.Tool{ID: "identity"}); err != nil {
		t.Fatal(err)
	}
	lim := ratelimit.New(0.001, 1)
	t.Cleanup(lim.Stop)

	r := chi.NewRouter()
	MountRoutes(r, Dependencies{Service: service.New(reg), Limit: lim.Middleware})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/prompt", `{"prompt":"hi"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first prompt status = %d", resp.StatusCode)
	}
	resp = postJSON(t, srv.URL+"/tools/identity/execute", `{}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second call status = %d, want 429", resp.StatusCode)
	}

	// read-only routes are not limited
	resp = getURL(t, srv.URL+"/providers")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /providers status = %d", resp.StatusCode)
	}
}

func TestEventsSSE(t *testing.T) {
	env := setupTestServer(t, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/admin/v1/events?type=model_fallback", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, _ := reader.ReadString('\n')
	if !strings.HasPrefix(line, "event: connected") {
		t.Fatalf("first line = %q", line)
	}
	for env.bus.SubscriberCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	env.bus.Publish(events.Event{Type: events.EventPromptSuccess, Provider: "mock"})
	env.bus.Publish(events.Event{Type: events.EventModelFallback, Provider: "anthropic", FromModel: "a", ToModel: "b"})

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasPrefix(line, "event: ") {
			if got := strings.TrimSpace(strings.TrimPrefix(line, "event: ")); got != "model_fallback" && got != "connected" {
				t.Fatalf("filtered stream delivered %q", got)
			}
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"to_model":"b"`) {
			return
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t, true)
	resp := getURL(t, env.srv.URL+"/metrics")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{plugin.Validationf("x"), 400, "VALIDATION"},
		{plugin.NotFoundf("x"), 404, "NOT_FOUND"},
		{plugin.Preconditionf("x"), 503, "PRECONDITION"},
		{plugin.CapacityExhausted("x", nil), 429, "CAPACITY_EXHAUSTED"},
		{plugin.CredentialsExpired("x", nil), 502, "CREDENTIALS_EXPIRED"},
		{plugin.ProviderError("x", nil), 502, "PROVIDER_ERROR"},
		{fmt.Errorf("agent bash: %w", plugin.Validationf("bad dir")), 400, "VALIDATION"},
		{errors.New("boom"), 500, "INTERNAL_ERROR"},
	}
	for _, tc := range tests {
		status, code := StatusFor(tc.err)
		if status != tc.status || code != tc.code {
			t.Errorf("StatusFor(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, plugin.NotFoundf("agent %q not found", "x"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error != `agent "x" not found` || body.ErrorCode != "NOT_FOUND" {
		t.Errorf("body = %+v", body)
	}
}
