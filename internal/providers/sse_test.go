package providers

import (
	"io"
	"strings"
	"testing"
)

func TestFrameReader(t *testing.T) {
	body := ": keepalive\n" +
		"event: message_start\n" +
		"data: {\"type\":\"message_start\"}\n\n" +
		"\n" +
		"data: line one\n" +
		"data: line two\n\n" +
		"id: 7\n" +
		"data: [DONE]"

	fr := NewFrameReader(strings.NewReader(body))
	want := []Frame{
		{Event: "message_start", Data: `{"type":"message_start"}`},
		{Data: "line one\nline two"},
		{Data: "[DONE]"},
	}
	for i, w := range want {
		got, err := fr.Next()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got != w {
			t.Errorf("frame %d = %+v, want %+v", i, got, w)
		}
	}
	if _, err := fr.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFrameReaderEmpty(t *testing.T) {
	if _, err := NewFrameReader(strings.NewReader("")).Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}
