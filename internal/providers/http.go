package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "chitti.providers"

// Request is a JSON POST to an upstream model API.
type Request struct {
	URL     string
	Payload any
	Headers map[string]string
	// Provider and Model are recorded as span attributes.
	Provider string
	Model    string
}

// DoRequest sends req and returns the full response body. Non-200 responses
// become *StatusError.
func DoRequest(ctx context.Context, client *http.Client, req Request) ([]byte, error) {
	ctx, span := startSpan(ctx, "provider.request", req)
	defer span.End()

	resp, err := send(ctx, client, req)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("read response: %w", err)
		failSpan(span, err)
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		se := statusError(resp, body)
		failSpan(span, se)
		return nil, se
	}
	span.SetStatus(codes.Ok, "")
	return body, nil
}

// DoStreamRequest sends req and hands back the live response body. The span
// stays open until the caller closes the body.
func DoStreamRequest(ctx context.Context, client *http.Client, req Request) (io.ReadCloser, error) {
	ctx, span := startSpan(ctx, "provider.stream", req)

	resp, err := send(ctx, client, req)
	if err != nil {
		failSpan(span, err)
		span.End()
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			err = fmt.Errorf("read error response: %w", readErr)
		} else {
			err = statusError(resp, body)
		}
		failSpan(span, err)
		span.End()
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return &spanCloser{ReadCloser: resp.Body, span: span}, nil
}

func send(ctx context.Context, client *http.Client, req Request) (*http.Response, error) {
	data, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if id := GetRequestID(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func statusError(resp *http.Response, body []byte) *StatusError {
	se := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	se.ParseRetryAfter(resp.Header.Get("Retry-After"))
	return se
}

func startSpan(ctx context.Context, name string, req Request) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("http.url", req.URL)}
	if req.Provider != "" {
		attrs = append(attrs, attribute.String("chitti.provider", req.Provider))
	}
	if req.Model != "" {
		attrs = append(attrs, attribute.String("chitti.model", req.Model))
	}
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// spanCloser ends the request span when the body is closed.
type spanCloser struct {
	io.ReadCloser
	span trace.Span
}

func (sc *spanCloser) Close() error {
	err := sc.ReadCloser.Close()
	sc.span.End()
	return err
}
