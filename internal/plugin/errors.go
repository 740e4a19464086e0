package plugin

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the registry, the dispatch layer and
// provider implementations. Transports map kinds to their own status codes.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindPrecondition       Kind = "PRECONDITION"
	KindValidation         Kind = "VALIDATION"
	KindCapacityExhausted  Kind = "CAPACITY_EXHAUSTED"
	KindCredentialsExpired Kind = "CREDENTIALS_EXPIRED"
	KindProvider           Kind = "PROVIDER_ERROR"
)

// Error carries a Kind plus an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so sentinels such as ErrNotFound
// work with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrPrecondition       = &Error{Kind: KindPrecondition}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrCapacityExhausted  = &Error{Kind: KindCapacityExhausted}
	ErrCredentialsExpired = &Error{Kind: KindCredentialsExpired}
	ErrProvider           = &Error{Kind: KindProvider}
)

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Preconditionf(format string, args ...any) error {
	return &Error{Kind: KindPrecondition, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// CapacityExhausted reports that every fallback model was rate limited.
// last is the final throttling error observed.
func CapacityExhausted(msg string, last error) error {
	return &Error{Kind: KindCapacityExhausted, Msg: msg, Err: last}
}

// CredentialsExpired carries operator remediation guidance as its message.
func CredentialsExpired(guidance string, cause error) error {
	return &Error{Kind: KindCredentialsExpired, Msg: guidance, Err: cause}
}

// ProviderError wraps any other remote failure.
func ProviderError(msg string, cause error) error {
	return &Error{Kind: KindProvider, Msg: msg, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
