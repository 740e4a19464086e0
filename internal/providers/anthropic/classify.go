package anthropic

import (
	"errors"
	"net/http"

	"github.com/jordanhubbard/chitti/internal/providers"
)

type errorClass int

const (
	classOther errorClass = iota
	classThrottled
	classCredentials
)

var (
	throttleMarkers    = []string{"ThrottlingException", "rate_limit_error", "overloaded_error"}
	credentialsMarkers = []string{"ExpiredToken", "expired", "authentication_error"}
)

func asStatus(err error) *providers.StatusError {
	var se *providers.StatusError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

func classify(err error) errorClass {
	se := asStatus(err)
	if se == nil {
		return classOther
	}
	switch {
	case se.StatusCode == http.StatusTooManyRequests || se.StatusCode == 529:
		return classThrottled
	case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
		return classCredentials
	case se.BodyContains(throttleMarkers...):
		return classThrottled
	case se.BodyContains(credentialsMarkers...):
		return classCredentials
	}
	return classOther
}
