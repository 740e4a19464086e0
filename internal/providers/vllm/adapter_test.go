package vllm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jordanhubbard/chitti/internal/plugin"
)

func chatServer(t *testing.T, hits *atomic.Int64, reply string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("vLLM requests carry no Authorization header, got %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": reply}}},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestGenerateRoundRobin(t *testing.T) {
	var hitsA, hitsB atomic.Int64
	a := chatServer(t, &hitsA, "from a")
	b := chatServer(t, &hitsB, "from b")

	p := New(a.URL, []string{"local-model"}, WithEndpoints(b.URL+"/"))
	var replies []string
	for i := 0; i < 4; i++ {
		text, err := p.Generate(context.Background(), "hi", plugin.GenerateOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		replies = append(replies, text)
	}
	if hitsA.Load() != 2 || hitsB.Load() != 2 {
		t.Errorf("hits a=%d b=%d, want 2 each", hitsA.Load(), hitsB.Load())
	}
	if replies[0] != "from a" || replies[1] != "from b" {
		t.Errorf("replies = %v", replies)
	}
}

func TestGenerateStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != true {
			t.Errorf("stream flag = %v", req["stream"])
		}
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"a"}}]}` + "\n\n"))
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"b"}}]}` + "\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer ts.Close()

	st, err := New(ts.URL, []string{"m"}).GenerateStream(context.Background(), "hi", plugin.GenerateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	text, err := plugin.Collect(st)
	if err != nil || text != "ab" {
		t.Errorf("Collect = %q, %v", text, err)
	}
}

func TestRejectsUnknownModel(t *testing.T) {
	_, err := New("http://unused", []string{"m"}).Generate(context.Background(), "hi", plugin.GenerateOptions{Model: "other"})
	if plugin.KindOf(err) != plugin.KindValidation {
		t.Errorf("err = %v", err)
	}
}

func TestNoEndpoints(t *testing.T) {
	_, err := New("", []string{"m"}).Generate(context.Background(), "hi", plugin.GenerateOptions{})
	if plugin.KindOf(err) != plugin.KindPrecondition {
		t.Errorf("err = %v", err)
	}
}

func TestServerErrorIsProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()
	_, err := New(ts.URL, []string{"m"}).Generate(context.Background(), "hi", plugin.GenerateOptions{})
	if plugin.KindOf(err) != plugin.KindProvider {
		t.Errorf("err = %v", err)
	}
}

func TestInfo(t *testing.T) {
	info := New("http://gpu1:8000", []string{"llama", "qwen"}).Info()
	if err := info.Validate(); err != nil {
		t.Fatal(err)
	}
	if info.DefaultModel != "llama" {
		t.Errorf("default = %s", info.DefaultModel)
	}
}
