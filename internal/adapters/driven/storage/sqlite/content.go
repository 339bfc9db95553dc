package sqlite

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
)

// Ensure ContentIndex implements the interface.
var _ driven.ContentIndex = (*ContentIndex)(nil)

// ContentIndex stores rendered document bytes keyed by path, mirrored
// into an FTS5 table for full-text search. Writes serialize through the
// database's writer; reads use the read-only pool.
type ContentIndex struct {
	exec    driven.DBExecutor
	once    sync.Once
	initErr error
}

// NewContentIndex creates a content index over an executor. The backing
// tables are created on first use; a pre-existing index is reused.
func NewContentIndex(exec driven.DBExecutor) *ContentIndex {
	return &ContentIndex{exec: exec}
}

func (c *ContentIndex) init(ctx context.Context) error {
	c.once.Do(func() {
		_, c.initErr = c.exec.ExecBatchWrite(ctx, []driven.Statement{
			{SQL: "CREATE TABLE IF NOT EXISTS content (path TEXT PRIMARY KEY, body BLOB NOT NULL)"},
			{SQL: "CREATE VIRTUAL TABLE IF NOT EXISTS content_fts USING fts5(path, body)"},
		})
	})
	if c.initErr != nil {
		return fmt.Errorf("creating content tables: %w", c.initErr)
	}
	return nil
}

// Add upserts the full content of r under path.
func (c *ContentIndex) Add(ctx context.Context, path string, r io.Reader) error {
	if err := c.init(ctx); err != nil {
		return err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading content for %s: %w", path, err)
	}

	_, err = c.exec.ExecBatchWrite(ctx, []driven.Statement{
		{
			SQL: "INSERT INTO content (path, body) VALUES (?, ?) ON CONFLICT(path) DO UPDATE SET body = excluded.body",
			Binds: []driven.BindValue{
				driven.TextValue(path),
				driven.BlobValue(body),
			},
		},
		{
			SQL:   "DELETE FROM content_fts WHERE path = ?",
			Binds: []driven.BindValue{driven.TextValue(path)},
		},
		{
			SQL: "INSERT INTO content_fts (path, body) VALUES (?, ?)",
			Binds: []driven.BindValue{
				driven.TextValue(path),
				driven.TextValue(string(body)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upserting content for %s: %w", path, err)
	}
	return nil
}

// Get returns a reader over the stored bytes for path.
func (c *ContentIndex) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := c.init(ctx); err != nil {
		return nil, err
	}
	rows, err := c.exec.ExecFetchAll(ctx, driven.Statement{
		SQL:   "SELECT body FROM content WHERE path = ?",
		Binds: []driven.BindValue{driven.TextValue(path)},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching content for %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("content for %s: %w", path, domain.ErrNotFound)
	}
	body, ok := rows[0]["body"].([]byte)
	if !ok {
		if s, ok := rows[0]["body"].(string); ok {
			body = []byte(s)
		}
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

// Search returns the paths whose content matches an FTS5 query, ranked.
func (c *ContentIndex) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if err := c.init(ctx); err != nil {
		return nil, err
	}
	rows, err := c.exec.ExecFetchAll(ctx, driven.Statement{
		SQL: "SELECT path FROM content_fts WHERE content_fts MATCH ? ORDER BY rank LIMIT ?",
		Binds: []driven.BindValue{
			driven.TextValue(query),
			driven.LongValue(int64(limit)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching content: %w", err)
	}
	paths := make([]string, 0, len(rows))
	for _, row := range rows {
		switch v := row["path"].(type) {
		case string:
			paths = append(paths, v)
		case []byte:
			paths = append(paths, string(v))
		}
	}
	return paths, nil
}
