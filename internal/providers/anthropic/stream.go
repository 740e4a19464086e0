package anthropic

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/jordanhubbard/chitti/internal/plugin"
	"github.com/jordanhubbard/chitti/internal/providers"
)

// event is the subset of a Messages API stream event we decode.
type event struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// stream decodes text deltas from an SSE body. It is single-consumer.
type stream struct {
	body   io.ReadCloser
	frames *providers.FrameReader

	mu     sync.Mutex
	closed bool
	done   bool
}

func newStream(body io.ReadCloser) *stream {
	return &stream{body: body, frames: providers.NewFrameReader(body)}
}

func (s *stream) Recv() (string, error) {
	s.mu.Lock()
	if s.closed || s.done {
		s.mu.Unlock()
		return "", io.EOF
	}
	s.mu.Unlock()

	for {
		f, err := s.frames.Next()
		if err == io.EOF {
			s.finish()
			return "", io.EOF
		}
		if err != nil {
			if s.isClosed() {
				return "", io.EOF
			}
			return "", plugin.ProviderError("read stream", err)
		}
		text, stop, err := decodeFrame(f.Data)
		if err != nil {
			return "", err
		}
		if stop {
			s.finish()
			return "", io.EOF
		}
		if text != "" {
			return text, nil
		}
	}
}

// Close releases the HTTP body. It is safe to call more than once.
func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

func (s *stream) finish() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}

func (s *stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// decodeFrame yields text only for content_block_delta/text_delta events.
// Frames that are not valid JSON are skipped.
func decodeFrame(data string) (text string, stop bool, err error) {
	var ev event
	if jerr := json.Unmarshal([]byte(data), &ev); jerr != nil {
		return "", false, nil
	}
	switch ev.Type {
	case "content_block_delta":
		if ev.Delta.Type == "text_delta" {
			return ev.Delta.Text, false, nil
		}
	case "message_stop":
		return "", true, nil
	case "error":
		return "", false, plugin.ProviderError(
			fmt.Sprintf("upstream stream error (%s)", ev.Error.Type),
			fmt.Errorf("%s", ev.Error.Message))
	}
	return "", false, nil
}
