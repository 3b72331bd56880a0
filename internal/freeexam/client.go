// Package freeexam is a typed client for the freeExam REST backend.
//
// Responses may arrive bare or wrapped in {"data": ...}. Every decoded payload
// is checked against the model's binding tags before it is handed to callers,
// so a service never sees a half-formed exam or status.
package freeexam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeexam/examdesk/internal/validator"
)

const maxResponseBytes = 4 << 20

var (
	// ErrMalformedResponse is returned when a 2xx payload fails to decode or validate.
	ErrMalformedResponse = errors.New("freeexam: malformed response")
	// ErrEmptyResponse is returned when a 2xx payload is empty or null.
	ErrEmptyResponse = fmt.Errorf("%w: empty payload", ErrMalformedResponse)
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
	Path    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("freeexam: %s returned %d", e.Path, e.Status)
	}
	return fmt.Sprintf("freeexam: %s returned %d: %s", e.Path, e.Status, e.Message)
}

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// MessageOf returns the upstream error message carried by err, or fallback.
func MessageOf(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	// RequestID extracts the inbound request ID to forward as X-Request-ID.
	RequestID func(context.Context) string
	Logger    zerolog.Logger
}

// Client talks to the freeExam backend.
type Client struct {
	baseURL   string
	http      *http.Client
	requestID func(context.Context) string
	log       zerolog.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      client,
		requestID: cfg.RequestID,
		log:       cfg.Logger.With().Str("component", "freeexam_client").Logger(),
	}
}

// do sends one request and decodes the (possibly enveloped) payload into out.
// out may be nil when the caller only cares about success.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("freeexam: encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("freeexam: build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.requestID != nil {
		if id := c.requestID(ctx); id != "" {
			req.Header.Set("X-Request-ID", id)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("freeexam: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("freeexam: read %s response: %w", path, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Upstream call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw), Path: path}
	}
	if out == nil {
		return nil
	}
	return decode(raw, out)
}

// decode unwraps an optional {"data": ...} envelope, decodes and validates.
func decode(raw []byte, out any) error {
	payload := unwrap(raw)
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := check(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func unwrap(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return trimmed
	}
	if data, ok := env["data"]; ok {
		return data
	}
	return trimmed
}

func check(out any) error {
	v := reflect.ValueOf(out)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct:
		return validator.Struct(v.Addr().Interface())
	case reflect.Slice:
		return validator.Slice(v.Interface())
	}
	return nil
}

// errorMessage pulls a human message out of an error body. The backend uses
// {"message": "..."}, {"error": "..."} and {"error": {"message": "..."}}.
func errorMessage(raw []byte) string {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	if len(body.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(body.Error, &s); err == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}

func esc(s string) string {
	return url.PathEscape(s)
}
