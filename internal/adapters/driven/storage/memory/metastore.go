// Package memory provides in-process implementations of the storage
// ports: an append-only metadata log and a roaring-bitmap field index.
package memory

import (
	"sync"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
)

// Ensure MetadataStore implements the interface.
var _ driven.MetadataStore = (*MetadataStore)(nil)

// MetadataStore is an append-only in-memory record log. Entry ids are
// positions in the log; records are never removed within a run.
type MetadataStore struct {
	mu      sync.RWMutex
	records []map[string]any
}

// NewMetadataStore creates an empty store.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{}
}

// First returns the first entry, or ok=false when the log is empty.
func (s *MetadataStore) First() (driven.EntryID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return 0, false
	}
	return 0, true
}

// Get returns the record at entry and the entry after it.
func (s *MetadataStore) Get(entry driven.EntryID) (driven.EntryID, bool, map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(entry) >= len(s.records) {
		return 0, false, nil, domain.ErrNotFound
	}
	next := entry + 1
	if int(next) >= len(s.records) {
		return 0, false, s.records[entry], nil
	}
	return next, true, s.records[entry], nil
}

// Append adds a record and returns its entry id.
func (s *MetadataStore) Append(record map[string]any) (driven.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return driven.EntryID(len(s.records) - 1), nil
}

// Flush is a no-op for the in-memory log.
func (s *MetadataStore) Flush() error {
	return nil
}

// Len reports the number of records.
func (s *MetadataStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
