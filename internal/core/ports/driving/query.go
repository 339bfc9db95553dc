package driving

import (
	"context"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
)

// ContentQuery answers filter queries over ingested document metadata.
type ContentQuery interface {
	// Find evaluates the filter and returns matching records after
	// sorting, skip and limit.
	Find(ctx context.Context, filter domain.Filter, opts domain.FindOptions) ([]map[string]any, error)

	// FindOne is Find with limit 1, returning nil on no match.
	FindOne(ctx context.Context, filter domain.Filter) (map[string]any, error)
}

// Ingester accepts document paths for the ingestion pipeline.
type Ingester interface {
	// IngestPath schedules one file for parse, render and index.
	IngestPath(path string) error

	// Stop drains the pipeline and releases its queues.
	Stop()
}
