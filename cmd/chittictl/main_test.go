package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/chitti/internal/app"
)

func newLiveCtl(t *testing.T) (*ctl, *bytes.Buffer) {
	t.Helper()
	cfg := app.Config{
		ListenAddr:          ":0",
		LogLevel:            "info",
		LogFormat:           "json",
		DBDSN:               ":memory:",
		EnableBashAgent:     true,
		ProviderTimeoutSecs: 5,
	}
	srv, err := app.NewServer(context.Background(), cfg, app.Options{
		Version: "1.2.3",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close(context.Background()) })

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	var out bytes.Buffer
	return &ctl{base: ts.URL, client: ts.Client(), out: &out}, &out
}

func TestStatus(t *testing.T) {
	c, out := newLiveCtl(t)
	require.NoError(t, c.run([]string{"status"}))
	assert.Contains(t, out.String(), "Version:   1.2.3")
	assert.Contains(t, out.String(), "Status:    ok")
	assert.Contains(t, out.String(), "Providers: 1")
}

func TestProvidersAndAgents(t *testing.T) {
	c, out := newLiveCtl(t)

	require.NoError(t, c.run([]string{"providers"}))
	assert.Contains(t, out.String(), "PROVIDER")
	assert.Regexp(t, `echo\s+echo\s+3`, out.String())

	out.Reset()
	require.NoError(t, c.run([]string{"agents", "bash"}))
	assert.Contains(t, out.String(), `"name": "bash"`)

	out.Reset()
	require.NoError(t, c.run([]string{"tools"}))
	assert.Equal(t, "sysinfo\n", out.String())

	err := c.run([]string{"providers", "ghost"})
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
}

func TestDefaults(t *testing.T) {
	c, out := newLiveCtl(t)

	require.NoError(t, c.run([]string{"defaults", "set-model", "echo", "shout"}))
	out.Reset()
	require.NoError(t, c.run([]string{"defaults"}))
	assert.Equal(t, "Provider: echo\nModel:    shout\n", out.String())

	err := c.run([]string{"defaults", "set-model", "echo", "whisper"})
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	assert.ErrorIs(t, c.run([]string{"defaults", "set-provider"}), errUsage)
}

func TestPromptStreamsAndLogs(t *testing.T) {
	c, out := newLiveCtl(t)

	require.NoError(t, c.run([]string{"prompt", "--model", "shout", "hello", "world"}))
	assert.Equal(t, "HELLO WORLD\n", out.String())

	out.Reset()
	require.NoError(t, c.run([]string{"logs", "--limit", "5"}))
	assert.Contains(t, out.String(), "stream")
	assert.Contains(t, out.String(), "shout")

	out.Reset()
	require.NoError(t, c.run([]string{"health"}))
	assert.Regexp(t, `echo\s+healthy\s+1\s+0`, out.String())

	out.Reset()
	require.NoError(t, c.run([]string{"usage"}))
	assert.Regexp(t, `echo\s+shout\s+1\s+0`, out.String())

	assert.ErrorIs(t, c.run([]string{"prompt"}), errUsage)
}

func TestPromptStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"text\":\"par\"}\n\n")
		fmt.Fprint(w, "event: error\ndata: {\"error\":\"upstream gone\",\"error_code\":\"PROVIDER_ERROR\"}\n\n")
	}))
	defer srv.Close()

	var out bytes.Buffer
	c := &ctl{base: srv.URL, client: srv.Client(), out: &out}
	err := c.run([]string{"prompt", "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream gone")
	assert.Equal(t, "par\n", out.String())
}

func TestEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "model_fallback", r.URL.Query().Get("type"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
		fmt.Fprint(w, `data: {"type":"model_fallback","provider":"anthropic","from_model":"a","to_model":"b","timestamp":"2026-03-01T12:00:00Z"}`+"\n\n")
	}))
	defer srv.Close()

	var out bytes.Buffer
	c := &ctl{base: srv.URL, client: srv.Client(), out: &out}
	require.NoError(t, c.run([]string{"events", "model_fallback"}))
	assert.Contains(t, out.String(), "model_fallback  provider=anthropic from=a to=b")
	assert.Contains(t, out.String(), "Event stream closed.")
}

func TestReadSSE(t *testing.T) {
	in := "event: connected\n\ndata: one\ndata: two\n\n: comment\ndata: three\n\n"
	var frames []sseFrame
	require.NoError(t, readSSE(strings.NewReader(in), func(f sseFrame) bool {
		frames = append(frames, f)
		return true
	}))
	require.Len(t, frames, 3)
	assert.Equal(t, "connected", frames[0].Event)
	assert.Equal(t, "one\ntwo", frames[1].Data)
	assert.Equal(t, "three", frames[2].Data)
}

func TestFlagValue(t *testing.T) {
	v, rest := flagValue([]string{"--model", "m", "hello"}, "--model")
	assert.Equal(t, "m", v)
	assert.Equal(t, []string{"hello"}, rest)

	v, rest = flagValue([]string{"hello"}, "--model")
	assert.Empty(t, v)
	assert.Equal(t, []string{"hello"}, rest)

	assert.Equal(t, 50, parseLimit(nil))
	assert.Equal(t, 7, parseLimit([]string{"--limit", "7"}))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "3", fmtNum(float64(3)))
	assert.Equal(t, "free", fmtCost(float64(0)))
	assert.Equal(t, "$0.0125", fmtCost(0.0125))
	assert.Equal(t, "250ms", fmtDuration(float64(250)))
	assert.Equal(t, "1.5s", fmtDuration(float64(1500)))
	assert.Equal(t, "-", fmtTime(nil))
}

func TestUnknownCommand(t *testing.T) {
	c := &ctl{out: io.Discard}
	assert.ErrorIs(t, c.run([]string{"frobnicate"}), errUsage)
	assert.ErrorIs(t, c.run(nil), errUsage)
	require.NoError(t, c.run([]string{"version"}))
}
