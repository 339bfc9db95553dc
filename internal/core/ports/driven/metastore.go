package driven

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
)

// EntryID identifies one record inside a metadata store. Entries are
// opaque to callers: the only legal sources are First, Get and Append.
type EntryID = uint32

// MetadataStore is the append-only record log behind the query engine.
// Iteration walks the (next, record) chain starting at First.
type MetadataStore interface {
	// First returns the first entry, or ok=false when the store is empty.
	First() (entry EntryID, ok bool)

	// Get returns the record at entry plus the following entry.
	// nextOK=false means entry was the last one.
	Get(entry EntryID) (next EntryID, nextOK bool, record map[string]any, err error)

	// Append adds a record and returns its entry.
	Append(record map[string]any) (EntryID, error)

	// Flush persists buffered appends.
	Flush() error
}

// IndexBackend answers equality, membership and range constraints with
// candidate entry sets. A nil bitmap means the backend cannot answer
// the constraint; an empty bitmap is a real answer meaning no matches.
// Fields outside the backend's IndexConfig are never answered.
type IndexBackend interface {
	LookupEq(field string, value any) (*roaring.Bitmap, error)
	LookupIn(field string, values []any) (*roaring.Bitmap, error)

	// LookupRange answers min <= value <= max; nil bounds are open.
	LookupRange(field string, min, max any) (*roaring.Bitmap, error)
}

// IndexFieldType fixes the value typing of one indexed field.
type IndexFieldType int

const (
	IndexString IndexFieldType = iota
	IndexInteger
	IndexBoolean
)

// IndexConfig lists the fields a backend indexes and their types.
// List-valued fields are indexed element-wise.
type IndexConfig struct {
	Fields map[string]IndexFieldType
}

// DefaultIndexConfig covers the fields the serving path filters on.
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{Fields: map[string]IndexFieldType{
		"id":               IndexString,
		"type":             IndexString,
		"slug":             IndexString,
		"parent":           IndexString,
		"content.section":  IndexString,
		"publish.status":   IndexString,
		"tax.categories":   IndexString,
		"tax.tags":         IndexString,
		"tax.series":       IndexString,
		"i18n.lang":        IndexString,
		"author.author":    IndexString,
		"nav.menu_order":   IndexInteger,
		"nav.menu_visible": IndexBoolean,
	}}
}

// Indexer ingests records into a backend as they are appended.
type Indexer interface {
	IndexBackend

	// Index registers the record's field values under entry.
	Index(entry EntryID, rec domain.IndexRecord) error
}
