package memory

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
)

// Ensure FieldIndex implements the interface.
var _ driven.Indexer = (*FieldIndex)(nil)

// FieldIndex maps indexed field values to roaring bitmaps of entry ids.
// Keys are order-preserving byte encodings so range lookups walk the
// sorted key space: strings as UTF-8 bytes, integers big-endian with
// the sign bit flipped, booleans as a single byte.
type FieldIndex struct {
	mu     sync.RWMutex
	cfg    driven.IndexConfig
	fields map[string]map[string]*roaring.Bitmap
}

// NewFieldIndex creates an index answering only the configured fields.
func NewFieldIndex(cfg driven.IndexConfig) *FieldIndex {
	return &FieldIndex{
		cfg:    cfg,
		fields: make(map[string]map[string]*roaring.Bitmap),
	}
}

// Index registers the record's emitted field values under entry. Values
// whose type does not match the field's configured type are skipped.
func (x *FieldIndex) Index(entry driven.EntryID, rec domain.IndexRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, fv := range rec.Fields() {
		ft, ok := x.cfg.Fields[fv.Field]
		if !ok {
			continue
		}
		key, ok := encodeKey(ft, fv.Value)
		if !ok {
			continue
		}
		byVal := x.fields[fv.Field]
		if byVal == nil {
			byVal = make(map[string]*roaring.Bitmap)
			x.fields[fv.Field] = byVal
		}
		bm := byVal[key]
		if bm == nil {
			bm = roaring.New()
			byVal[key] = bm
		}
		bm.Add(entry)
	}
	return nil
}

// LookupEq answers field == value. A nil bitmap means the constraint is
// outside this index's configuration.
func (x *FieldIndex) LookupEq(field string, value any) (*roaring.Bitmap, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ft, ok := x.cfg.Fields[field]
	if !ok {
		return nil, nil
	}
	key, ok := encodeKey(ft, value)
	if !ok {
		// a value of the wrong type matches nothing of this field's type
		return roaring.New(), nil
	}
	if bm := x.fields[field][key]; bm != nil {
		return bm.Clone(), nil
	}
	return roaring.New(), nil
}

// LookupIn answers field ∈ values as the union of equality lookups.
func (x *FieldIndex) LookupIn(field string, values []any) (*roaring.Bitmap, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ft, ok := x.cfg.Fields[field]
	if !ok {
		return nil, nil
	}
	out := roaring.New()
	for _, v := range values {
		key, ok := encodeKey(ft, v)
		if !ok {
			continue
		}
		if bm := x.fields[field][key]; bm != nil {
			out.Or(bm)
		}
	}
	return out, nil
}

// LookupRange answers min <= value <= max over the sorted key space.
// Nil bounds are open ends.
func (x *FieldIndex) LookupRange(field string, min, max any) (*roaring.Bitmap, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ft, ok := x.cfg.Fields[field]
	if !ok {
		return nil, nil
	}

	var lo, hi string
	var hasLo, hasHi bool
	if min != nil {
		key, ok := encodeKey(ft, min)
		if !ok {
			return nil, nil
		}
		lo, hasLo = key, true
	}
	if max != nil {
		key, ok := encodeKey(ft, max)
		if !ok {
			return nil, nil
		}
		hi, hasHi = key, true
	}

	byVal := x.fields[field]
	keys := make([]string, 0, len(byVal))
	for k := range byVal {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := roaring.New()
	for _, k := range keys {
		if hasLo && k < lo {
			continue
		}
		if hasHi && k > hi {
			break
		}
		out.Or(byVal[k])
	}
	return out, nil
}

// encodeKey produces the order-preserving byte key for a value of the
// configured field type.
func encodeKey(ft driven.IndexFieldType, value any) (string, bool) {
	switch ft {
	case driven.IndexString:
		s, ok := value.(string)
		return s, ok
	case driven.IndexInteger:
		n, ok := asInt64(value)
		if !ok {
			return "", false
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(n)^(1<<63))
		return string(buf[:]), true
	case driven.IndexBoolean:
		b, ok := value.(bool)
		if !ok {
			return "", false
		}
		if b {
			return "\x01", true
		}
		return "\x00", true
	default:
		return "", false
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}
