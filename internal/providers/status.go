package providers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusError is a non-2xx response from an upstream model API. Adapters
// inspect it to decide between fallback, credential and generic failures.
type StatusError struct {
	StatusCode     int
	Body           string
	RetryAfterSecs int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// ParseRetryAfter records a Retry-After header given either as delay seconds
// or as an HTTP date. Unparseable values are ignored.
func (e *StatusError) ParseRetryAfter(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs > 0 {
			e.RetryAfterSecs = secs
		}
		return
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			e.RetryAfterSecs = int(d.Round(time.Second) / time.Second)
		}
	}
}

// RetryAfter returns the server-requested delay, or zero.
func (e *StatusError) RetryAfter() time.Duration {
	return time.Duration(e.RetryAfterSecs) * time.Second
}

// BodyContains reports whether the response body mentions any of the given
// markers, case-insensitively.
func (e *StatusError) BodyContains(markers ...string) bool {
	body := strings.ToLower(e.Body)
	for _, m := range markers {
		if strings.Contains(body, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
