package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/jordanhubbard/chitti/internal/plugin"
)

// ChatPath is the OpenAI-compatible chat completions endpoint.
const ChatPath = "/v1/chat/completions"

// ChatPayload builds a single-turn chat completions request body.
func ChatPayload(model, prompt string, maxTokens int, stream bool) map[string]any {
	p := map[string]any{
		"model":    model,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	}
	if maxTokens > 0 {
		p["max_tokens"] = maxTokens
	}
	if stream {
		p["stream"] = true
	}
	return p
}

// ChatText extracts the first choice's message content.
func ChatText(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// MapChatError converts an upstream failure into the plugin error taxonomy.
// Chat-compatible backends have no fallback, so throttling surfaces as
// capacity exhaustion directly.
func MapChatError(provider, model string, err error, guidance string) error {
	var se *StatusError
	if !errors.As(err, &se) {
		return plugin.ProviderError(fmt.Sprintf("%s model %s", provider, model), err)
	}
	switch se.StatusCode {
	case http.StatusTooManyRequests:
		return plugin.CapacityExhausted(fmt.Sprintf("%s is rate limiting requests", provider), err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return plugin.CredentialsExpired(guidance, err)
	}
	return plugin.ProviderError(fmt.Sprintf("%s model %s", provider, model), err)
}

// ChatStream decodes choices[0].delta.content fragments from an
// OpenAI-compatible SSE body. Malformed frames are skipped and "[DONE]" ends
// the stream.
type ChatStream struct {
	body   io.ReadCloser
	frames *FrameReader

	mu     sync.Mutex
	closed bool
	done   bool
}

func NewChatStream(body io.ReadCloser) *ChatStream {
	return &ChatStream{body: body, frames: NewFrameReader(body)}
}

func (s *ChatStream) Recv() (string, error) {
	s.mu.Lock()
	ended := s.closed || s.done
	s.mu.Unlock()
	if ended {
		return "", io.EOF
	}
	for {
		f, err := s.frames.Next()
		if err == io.EOF {
			s.end()
			return "", io.EOF
		}
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return "", io.EOF
			}
			return "", plugin.ProviderError("read stream", err)
		}
		if f.Data == "[DONE]" {
			s.end()
			return "", io.EOF
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal([]byte(f.Data), &chunk) != nil {
			continue
		}
		if chunk.Error != nil {
			return "", plugin.ProviderError("upstream stream error", fmt.Errorf("%s", chunk.Error.Message))
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return chunk.Choices[0].Delta.Content, nil
		}
	}
}

func (s *ChatStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

func (s *ChatStream) end() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}

var _ plugin.Stream = (*ChatStream)(nil)
