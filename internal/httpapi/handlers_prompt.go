package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/jordanhubbard/chitti/internal/plugin"
	"github.com/jordanhubbard/chitti/internal/service"
)

const maxBodyBytes = 1 << 20

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validateName(kind, name string) error {
	if !namePattern.MatchString(name) {
		return plugin.Validationf("invalid %s name %q", kind, name)
	}
	return nil
}

// PromptBody is the JSON body of POST /prompt.
type PromptBody struct {
	Prompt    string         `json:"prompt"`
	Model     string         `json:"model,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	Stream    bool           `json:"stream,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return plugin.Validationf("invalid json: %v", err)
	}
	return nil
}

// PromptHandler serves POST /prompt. With ?stream=true (or "stream": true in
// the body) the response is text/event-stream: one "data:" frame per
// fragment carrying {"text": ...}, then "event: done", or "event: error" if
// the provider fails mid-stream.
func PromptHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body PromptBody
		if err := decodeBody(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		if strings.TrimSpace(body.Prompt) == "" {
			WriteError(w, plugin.Validationf("empty prompt"))
			return
		}
		if body.Provider != "" {
			if err := validateName("provider", body.Provider); err != nil {
				WriteError(w, err)
				return
			}
		}
		if body.MaxTokens < 0 {
			WriteError(w, plugin.Validationf("max_tokens must not be negative"))
			return
		}

		req := service.PromptRequest{
			Prompt:   body.Prompt,
			Model:    body.Model,
			Provider: body.Provider,
			Context:  body.Context,
			Options:  plugin.GenerateOptions{MaxTokens: body.MaxTokens},
		}

		stream := body.Stream
		if v := r.URL.Query().Get("stream"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				WriteError(w, plugin.Validationf("invalid stream parameter %q", v))
				return
			}
			stream = b
		}
		if stream {
			streamPrompt(d, w, r, req)
			return
		}

		resp, err := d.Service.Process(r.Context(), req)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func streamPrompt(d Dependencies, w http.ResponseWriter, r *http.Request, req service.PromptRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming unsupported", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}

	// Errors before the first fragment still get a normal JSON status.
	res, st, err := d.Service.Stream(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	defer func() { _ = st.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Chitti-Provider", res.Provider)
	w.Header().Set("X-Chitti-Model", res.Model)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		frag, err := st.Recv()
		if err == io.EOF {
			writeEvent(w, "done", res)
			flusher.Flush()
			return
		}
		if err != nil {
			_, code := StatusFor(err)
			writeEvent(w, "error", errorBody{Error: err.Error(), ErrorCode: code})
			flusher.Flush()
			d.logger().Warn("stream failed",
				slog.String("provider", res.Provider),
				slog.String("model", res.Model),
				slog.String("request_id", res.RequestID),
				slog.String("error", err.Error()),
			)
			return
		}
		if r.Context().Err() != nil {
			return
		}
		writeEvent(w, "", map[string]string{"text": frag})
		flusher.Flush()
	}
}

// writeEvent writes a single SSE frame. An empty name means the default
// "message" event.
func writeEvent(w io.Writer, name string, v any) {
	b, _ := json.Marshal(v)
	if name != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", name)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
}
