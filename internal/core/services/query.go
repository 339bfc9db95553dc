package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driving"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.ContentQuery = (*QueryService)(nil)

// QueryService evaluates filters over the metadata store, pruning
// candidates through the index backend where it can. Pruning is purely
// an optimization: every candidate still passes the full filter.
type QueryService struct {
	store driven.MetadataStore
	index driven.IndexBackend
}

// NewQueryService creates a query service over a store and its index.
func NewQueryService(store driven.MetadataStore, index driven.IndexBackend) *QueryService {
	return &QueryService{store: store, index: index}
}

// constraint is one indexable predicate harvested from a filter.
type constraint struct {
	field  string
	op     domain.CmpOp // OpEq or OpIn
	value  any
	values []any
}

// Find evaluates the filter, then sorts and pages the matches.
func (s *QueryService) Find(ctx context.Context, filter domain.Filter, opts domain.FindOptions) ([]map[string]any, error) {
	candidates, err := s.candidates(filter)
	if err != nil {
		return nil, err
	}

	// The store is append-only, so a re-ingested document appears once
	// per ingest. Candidates arrive in ascending entry order; the newest
	// matching record per id supersedes any earlier one.
	var matches []map[string]any
	seen := map[string]int{}
	for _, entry := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, _, record, err := s.store.Get(entry)
		if err != nil {
			return nil, fmt.Errorf("loading entry %d: %w", entry, err)
		}
		if !filter.Matches(record) {
			continue
		}
		if id, ok := record["id"].(string); ok {
			if at, dup := seen[id]; dup {
				matches[at] = record
				continue
			}
			seen[id] = len(matches)
		}
		matches = append(matches, record)
	}

	sortRecords(matches, opts.Sort)

	// skip and limit saturate rather than error
	if opts.Skip > 0 {
		if opts.Skip >= len(matches) {
			return nil, nil
		}
		matches = matches[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(matches) {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

// FindOne returns the first match, or nil when nothing matches.
func (s *QueryService) FindOne(ctx context.Context, filter domain.Filter) (map[string]any, error) {
	matches, err := s.Find(ctx, filter, domain.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

// candidates prunes the entry space with answered index constraints,
// falling back to the full enumeration when nothing can be answered.
func (s *QueryService) candidates(filter domain.Filter) ([]driven.EntryID, error) {
	var answered []*roaring.Bitmap
	for _, c := range harvest(filter) {
		var bm *roaring.Bitmap
		var err error
		switch c.op {
		case domain.OpEq:
			bm, err = s.index.LookupEq(c.field, c.value)
		case domain.OpIn:
			bm, err = s.index.LookupIn(c.field, c.values)
		}
		if err != nil {
			return nil, fmt.Errorf("index lookup on %s: %w", c.field, err)
		}
		if bm != nil {
			answered = append(answered, bm)
		}
	}

	if len(answered) == 0 {
		return s.allEntries()
	}

	logger.Debug("index pruned candidates", "constraints", len(answered))
	return roaring.FastAnd(answered...).ToArray(), nil
}

// allEntries walks the store's (next, record) chain.
func (s *QueryService) allEntries() ([]driven.EntryID, error) {
	entry, ok := s.store.First()
	if !ok {
		return nil, nil
	}
	var out []driven.EntryID
	for {
		out = append(out, entry)
		next, nextOK, _, err := s.store.Get(entry)
		if err != nil {
			return nil, fmt.Errorf("walking entry %d: %w", entry, err)
		}
		if !nextOK {
			return out, nil
		}
		entry = next
	}
}

// harvest collects Eq and In constraints usable for pruning. Only
// conjunctive context qualifies: anything under an Or or a negation is
// left to the full evaluation.
func harvest(f domain.Filter) []constraint {
	switch {
	case f.Cond != nil:
		c := f.Cond
		if c.Negate {
			return nil
		}
		switch c.Op {
		case domain.OpEq:
			return []constraint{{field: c.Field, op: domain.OpEq, value: c.Value}}
		case domain.OpIn:
			values, _ := c.Value.([]any)
			return []constraint{{field: c.Field, op: domain.OpIn, values: values}}
		}
		return nil
	case f.And != nil:
		var out []constraint
		for _, sub := range f.And {
			out = append(out, harvest(sub)...)
		}
		return out
	default:
		// Or and Not subtrees are not harvested
		return nil
	}
}

// sortRecords orders matches by the sort keys: missing values after
// present ones, typed comparisons, stable under equal keys.
func sortRecords(records []map[string]any, keys []domain.SortField) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, key := range keys {
			vi, oki := domain.ResolveField(records[i], key.Field)
			vj, okj := domain.ResolveField(records[j], key.Field)
			switch {
			case !oki && !okj:
				continue
			case !oki:
				return false
			case !okj:
				return true
			}
			ord := domain.CompareFieldValues(vi, vj)
			if ord == 0 {
				continue
			}
			if key.Desc {
				return ord > 0
			}
			return ord < 0
		}
		return false
	})
}
