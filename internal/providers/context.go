package providers

import "context"

type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID tags ctx with the dispatch request ID. Outbound provider
// calls forward it as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
