package services

import (
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
)

// stubStore is an in-memory metadata store for planner tests.
type stubStore struct {
	records []map[string]any
}

func (s *stubStore) First() (driven.EntryID, bool) {
	if len(s.records) == 0 {
		return 0, false
	}
	return 0, true
}

func (s *stubStore) Get(entry driven.EntryID) (driven.EntryID, bool, map[string]any, error) {
	if int(entry) >= len(s.records) {
		return 0, false, nil, domain.ErrNotFound
	}
	next := entry + 1
	return next, int(next) < len(s.records), s.records[entry], nil
}

func (s *stubStore) Append(record map[string]any) (driven.EntryID, error) {
	s.records = append(s.records, record)
	return driven.EntryID(len(s.records) - 1), nil
}

func (s *stubStore) Flush() error { return nil }

// stubIndex answers only configured lookups and records what was asked.
type stubIndex struct {
	answers map[string]map[any][]uint32
	eqCalls []string
}

func (x *stubIndex) LookupEq(field string, value any) (*roaring.Bitmap, error) {
	x.eqCalls = append(x.eqCalls, field)
	byVal, ok := x.answers[field]
	if !ok {
		return nil, nil
	}
	return roaring.BitmapOf(byVal[value]...), nil
}

func (x *stubIndex) LookupIn(field string, values []any) (*roaring.Bitmap, error) {
	byVal, ok := x.answers[field]
	if !ok {
		return nil, nil
	}
	out := roaring.New()
	for _, v := range values {
		out.AddMany(byVal[v])
	}
	return out, nil
}

func (x *stubIndex) LookupRange(string, any, any) (*roaring.Bitmap, error) {
	return nil, nil
}

func kindDocs() *stubStore {
	return &stubStore{records: []map[string]any{
		{"kind": "post", "draft": false},
		{"kind": "page", "draft": false},
		{"kind": "post", "draft": true},
	}}
}

func TestFindPrunedByIndex(t *testing.T) {
	store := kindDocs()
	index := &stubIndex{answers: map[string]map[any][]uint32{
		"kind": {"post": {0, 2}, "page": {1}},
	}}
	svc := NewQueryService(store, index)

	filter, err := domain.ParseFilter(map[string]any{
		"$and": []any{
			map[string]any{"kind": "post"},
			map[string]any{"draft": false},
		},
	})
	require.NoError(t, err)

	got, err := svc.Find(context.Background(), filter, domain.FindOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "post", got[0]["kind"])
	assert.Equal(t, false, got[0]["draft"])
	// only the indexable field was consulted
	assert.Contains(t, index.eqCalls, "kind")
}

func TestFindFallsBackWhenUnanswered(t *testing.T) {
	store := kindDocs()
	// the backend cannot answer anything
	svc := NewQueryService(store, &stubIndex{})

	filter, err := domain.ParseFilter(map[string]any{
		"kind":  "post",
		"draft": false,
	})
	require.NoError(t, err)

	got, err := svc.Find(context.Background(), filter, domain.FindOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "post", got[0]["kind"])
}

func TestFindOrConstraintsNotHarvested(t *testing.T) {
	store := kindDocs()
	// a poisoned answer: if the planner pruned on this, results would be wrong
	index := &stubIndex{answers: map[string]map[any][]uint32{
		"kind": {"post": {}, "page": {}},
	}}
	svc := NewQueryService(store, index)

	filter, err := domain.ParseFilter(map[string]any{
		"$or": []any{
			map[string]any{"kind": "post"},
			map[string]any{"kind": "page"},
		},
	})
	require.NoError(t, err)

	got, err := svc.Find(context.Background(), filter, domain.FindOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Empty(t, index.eqCalls)
}

func TestFindSortMissingAfterPresent(t *testing.T) {
	store := &stubStore{records: []map[string]any{
		{"id": "c", "nav": map[string]any{"menu_order": int64(2)}},
		{"id": "missing"},
		{"id": "a", "nav": map[string]any{"menu_order": int64(1)}},
	}}
	svc := NewQueryService(store, &stubIndex{})

	got, err := svc.Find(context.Background(), domain.Filter{}, domain.FindOptions{
		Sort: []domain.SortField{{Field: "nav.menu_order"}},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0]["id"])
	assert.Equal(t, "c", got[1]["id"])
	assert.Equal(t, "missing", got[2]["id"])
}

func TestFindSortDescendingStable(t *testing.T) {
	store := &stubStore{records: []map[string]any{
		{"id": "first", "rank": int64(1)},
		{"id": "second", "rank": int64(1)},
		{"id": "third", "rank": int64(9)},
	}}
	svc := NewQueryService(store, &stubIndex{})

	got, err := svc.Find(context.Background(), domain.Filter{}, domain.FindOptions{
		Sort: []domain.SortField{{Field: "rank", Desc: true}},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "third", got[0]["id"])
	// equal keys keep store order
	assert.Equal(t, "first", got[1]["id"])
	assert.Equal(t, "second", got[2]["id"])
}

func TestFindSkipLimitSaturate(t *testing.T) {
	store := kindDocs()
	svc := NewQueryService(store, &stubIndex{})

	got, err := svc.Find(context.Background(), domain.Filter{}, domain.FindOptions{Skip: 2, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = svc.Find(context.Background(), domain.Filter{}, domain.FindOptions{Skip: 99})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = svc.Find(context.Background(), domain.Filter{}, domain.FindOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFindOne(t *testing.T) {
	store := kindDocs()
	svc := NewQueryService(store, &stubIndex{})

	filter, err := domain.ParseFilter(map[string]any{"kind": "page"})
	require.NoError(t, err)

	got, err := svc.FindOne(context.Background(), filter)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "page", got["kind"])

	none, err := domain.ParseFilter(map[string]any{"kind": "widget"})
	require.NoError(t, err)
	missing, err := svc.FindOne(context.Background(), none)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindNewestRecordSupersedesReingest(t *testing.T) {
	// Re-ingesting an edited file appends a second record under the same
	// id. The newest one must win and the old one must not duplicate.
	store := &stubStore{records: []map[string]any{
		{"id": "/site/a.html", "title": "Old Title", "kind": "post"},
		{"id": "/site/b.html", "title": "Other", "kind": "post"},
		{"id": "/site/a.html", "title": "New Title", "kind": "post"},
	}}
	svc := NewQueryService(store, &stubIndex{})

	filter, err := domain.ParseFilter(map[string]any{"id": "/site/a.html"})
	require.NoError(t, err)

	got, err := svc.FindOne(context.Background(), filter)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "New Title", got["title"])

	all, err := svc.Find(context.Background(), domain.Filter{}, domain.FindOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	titles := []string{all[0]["title"].(string), all[1]["title"].(string)}
	assert.ElementsMatch(t, []string{"New Title", "Other"}, titles)
}

func TestFindEmptyStore(t *testing.T) {
	svc := NewQueryService(&stubStore{}, &stubIndex{})

	got, err := svc.Find(context.Background(), domain.Filter{}, domain.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
