package batch

import "context"

// Transport issues requests against the propagation service. Bodies are decoded
// JSON objects. A returned error means the request did not complete; any
// status code is reported without error.
type Transport interface {
	Get(ctx context.Context, path string) (int, map[string]any, error)
	Post(ctx context.Context, path string, body map[string]any) (int, map[string]any, error)
	Delete(ctx context.Context, path string) (int, error)
}
