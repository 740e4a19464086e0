package providers

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/jordanhubbard/chitti/internal/plugin"
)

func TestChatStream(t *testing.T) {
	body := `data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n\n" +
		"data: garbage\n\n" +
		`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n\n" +
		"data: [DONE]\n\n" +
		`data: {"choices":[{"delta":{"content":"ignored"}}]}` + "\n\n"

	st := NewChatStream(io.NopCloser(strings.NewReader(body)))
	text, err := plugin.Collect(st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hello" {
		t.Errorf("text = %q, want Hello", text)
	}
}

func TestChatStreamError(t *testing.T) {
	body := `data: {"error":{"message":"model crashed"}}` + "\n\n"
	st := NewChatStream(io.NopCloser(strings.NewReader(body)))
	defer st.Close()
	_, err := st.Recv()
	if !errors.Is(err, plugin.ErrProvider) {
		t.Errorf("err = %v, want provider error", err)
	}
}

func TestChatText(t *testing.T) {
	text, err := ChatText([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	if err != nil || text != "hi" {
		t.Errorf("ChatText = %q, %v", text, err)
	}
	if _, err := ChatText([]byte(`{"choices":[]}`)); err == nil {
		t.Error("expected error for empty choices")
	}
	if _, err := ChatText([]byte(`nope`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestMapChatError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{&StatusError{StatusCode: 429}, plugin.ErrCapacityExhausted},
		{&StatusError{StatusCode: 401}, plugin.ErrCredentialsExpired},
		{&StatusError{StatusCode: 403}, plugin.ErrCredentialsExpired},
		{&StatusError{StatusCode: 500}, plugin.ErrProvider},
		{errors.New("dial tcp: refused"), plugin.ErrProvider},
	}
	for _, tc := range tests {
		got := MapChatError("p", "m", tc.err, "rotate the key")
		if !errors.Is(got, tc.want) {
			t.Errorf("MapChatError(%v) = %v, want kind %v", tc.err, got, tc.want)
		}
	}
}

func TestChatPayload(t *testing.T) {
	p := ChatPayload("m", "hi", 0, false)
	if _, ok := p["max_tokens"]; ok {
		t.Error("max_tokens should be omitted when zero")
	}
	if _, ok := p["stream"]; ok {
		t.Error("stream should be omitted when false")
	}
	p = ChatPayload("m", "hi", 64, true)
	if p["max_tokens"] != 64 || p["stream"] != true {
		t.Errorf("payload = %v", p)
	}
}
