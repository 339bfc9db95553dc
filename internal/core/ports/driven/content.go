package driven

import (
	"context"
	"io"
)

// ContentIndex is the bytes-oriented full-text index keyed by document
// path. Add is an idempotent upsert; writers may be serialized
// internally while readers run concurrently.
type ContentIndex interface {
	Add(ctx context.Context, path string, r io.Reader) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// TemplateRegistry renders named templates with a JSON-shaped model.
type TemplateRegistry interface {
	Render(name string, model any) (string, error)
}
