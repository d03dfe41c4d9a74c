// Package rest implements batch.Transport over HTTP, plus decorators that add
// the auth token, retry transient codes and record request metrics.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// HTTPTransport sends JSON requests to a base URL.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPTransport returns a transport rooted at baseURL. A nil client uses a
// default one.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		timeout: defaultTimeout,
	}
}

// WithTimeout returns a copy using timeout per request. Zero disables it.
func (t *HTTPTransport) WithTimeout(timeout time.Duration) *HTTPTransport {
	clone := *t
	clone.timeout = timeout
	return &clone
}

func (t *HTTPTransport) Get(ctx context.Context, path string) (int, map[string]any, error) {
	return t.do(ctx, http.MethodGet, path, nil)
}

func (t *HTTPTransport) Post(ctx context.Context, path string, body map[string]any) (int, map[string]any, error) {
	return t.do(ctx, http.MethodPost, path, body)
}

func (t *HTTPTransport) Delete(ctx context.Context, path string) (int, error) {
	code, _, err := t.do(ctx, http.MethodDelete, path, nil)
	return code, err
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body map[string]any) (int, map[string]any, error) {
	if t.timeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > t.timeout {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.timeout)
			defer cancel()
		}
	}
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return 0, nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, decodeBody(payload), nil
}

// decodeBody returns nil for an empty body and wraps anything that is not a
// JSON object under "raw".
func decodeBody(payload []byte) map[string]any {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return map[string]any{"raw": string(trimmed)}
	}
	return m
}
