package driven

import "context"

// BindKind tags a SQL bind value.
type BindKind int

const (
	BindNull BindKind = iota
	BindText
	BindInt
	BindLong
	BindBool
	BindBlob
	BindFloat
	BindDouble
	BindJson
)

// BindValue is one positional SQL parameter with its logical type.
type BindValue struct {
	Kind BindKind

	Text   string
	Int    int32
	Long   int64
	Bool   bool
	Blob   []byte
	Float  float32
	Double float64

	// Json holds the already-serialized document for BindJson.
	Json string
}

// Constructors keep call sites terse.

func NullValue() BindValue            { return BindValue{Kind: BindNull} }
func TextValue(s string) BindValue    { return BindValue{Kind: BindText, Text: s} }
func IntValue(v int32) BindValue      { return BindValue{Kind: BindInt, Int: v} }
func LongValue(v int64) BindValue     { return BindValue{Kind: BindLong, Long: v} }
func BoolValue(v bool) BindValue      { return BindValue{Kind: BindBool, Bool: v} }
func BlobValue(b []byte) BindValue    { return BindValue{Kind: BindBlob, Blob: b} }
func FloatValue(v float32) BindValue  { return BindValue{Kind: BindFloat, Float: v} }
func DoubleValue(v float64) BindValue { return BindValue{Kind: BindDouble, Double: v} }
func JsonValue(doc string) BindValue  { return BindValue{Kind: BindJson, Json: doc} }

// Arg converts the bind into a driver-level argument.
func (b BindValue) Arg() any {
	switch b.Kind {
	case BindText:
		return b.Text
	case BindInt:
		return b.Int
	case BindLong:
		return b.Long
	case BindBool:
		return b.Bool
	case BindBlob:
		return b.Blob
	case BindFloat:
		return b.Float
	case BindDouble:
		return b.Double
	case BindJson:
		return b.Json
	default:
		return nil
	}
}

// Statement is one parametrised SQL statement.
type Statement struct {
	SQL   string
	Binds []BindValue
}

// DBExecutor runs statements against one database. Writes are atomic
// across a batch and serialized per database; reads may run
// concurrently.
type DBExecutor interface {
	// ExecBatchWrite runs all statements in a single transaction and
	// returns the total rows affected. The first failure rolls the
	// whole batch back.
	ExecBatchWrite(ctx context.Context, stmts []Statement) (int64, error)

	// ExecFetchAll runs a read query and returns all rows as column
	// name to value maps.
	ExecFetchAll(ctx context.Context, stmt Statement) ([]map[string]any, error)

	// CheckpointWal forces a WAL checkpoint.
	CheckpointWal(ctx context.Context) error
}
