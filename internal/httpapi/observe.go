package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jordanhubbard/chitti/internal/plugin"
)

// errorBody is the JSON error envelope: {"error": "<msg>", "error_code": "<KIND>"}.
type errorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

// jsonError writes a JSON-encoded error response with the given status code.
func jsonError(w http.ResponseWriter, msg, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, ErrorCode: code})
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err's Kind to an HTTP status and writes the error envelope.
// Agents mounting their own routes use it so every surface reports failures
// the same way.
func WriteError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Warn("request failed", slog.Int("status", status), slog.String("error", err.Error()))
	}
	jsonError(w, err.Error(), code, status)
}

// StatusFor returns the HTTP status and error code for err.
func StatusFor(err error) (int, string) {
	var pe *plugin.Error
	if !errors.As(err, &pe) {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return http.StatusRequestEntityTooLarge, string(plugin.KindValidation)
		}
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
	switch pe.Kind {
	case plugin.KindValidation:
		return http.StatusBadRequest, string(pe.Kind)
	case plugin.KindNotFound:
		return http.StatusNotFound, string(pe.Kind)
	case plugin.KindPrecondition:
		return http.StatusServiceUnavailable, string(pe.Kind)
	case plugin.KindCapacityExhausted:
		return http.StatusTooManyRequests, string(pe.Kind)
	case plugin.KindCredentialsExpired, plugin.KindProvider:
		return http.StatusBadGateway, string(pe.Kind)
	default:
		return http.StatusInternalServerError, string(pe.Kind)
	}
}

func parseIntParam(s string) (int, error) {
	return strconv.Atoi(s)
}

// parsePagination reads limit and offset, defaulting to 100 and 0. Limit is
// capped at 1000.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parseIntParam(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 1000 {
		limit = 1000
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := parseIntParam(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
