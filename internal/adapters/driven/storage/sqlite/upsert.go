package sqlite

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
)

// ColumnType is the logical type of a declared column.
type ColumnType int

const (
	ColText ColumnType = iota
	ColInteger
	ColBoolean
	ColBinary
	ColFloat
	ColDouble
	ColJson
	ColCustom
)

// ColumnSpec declares one column of an upsert target table.
type ColumnSpec struct {
	Name     string
	Type     ColumnType
	Raw      string // SQL type text for ColCustom
	PK       bool
	NotNull  bool
	Unique   bool
	Default  string
	HasDflt  bool
}

// TableSpec declares the target table of an upsert.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec

	// ConflictTarget optionally names the conflict columns; only the
	// first entry is used.
	ConflictTarget []string
}

// ArityError reports a row whose value count does not match the spec.
type ArityError struct {
	Table string
	Want  int
	Got   int
	Row   int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("table %s: row %d has %d values, want %d", e.Table, e.Row, e.Got, e.Want)
}

// Upsert writes rows into one declared table through a batch executor.
// The target table is created on first use, exactly once.
type Upsert struct {
	exec    driven.DBExecutor
	once    sync.Once
	initErr error
}

// NewUpsert creates an upsert bound to an executor.
func NewUpsert(exec driven.DBExecutor) *Upsert {
	return &Upsert{exec: exec}
}

// UpsertRows inserts or updates rows, binding values row-major in
// declaration order. Empty input is a no-op.
func (u *Upsert) UpsertRows(ctx context.Context, spec TableSpec, rows [][]driven.BindValue) (int64, error) {
	u.once.Do(func() {
		_, u.initErr = u.exec.ExecBatchWrite(ctx, []driven.Statement{{SQL: createTableSQL(spec)}})
	})
	if u.initErr != nil {
		return 0, fmt.Errorf("creating table %s: %w", spec.Name, u.initErr)
	}

	if len(rows) == 0 {
		return 0, nil
	}

	want := len(spec.Columns)
	for i, row := range rows {
		if len(row) != want {
			return 0, &ArityError{Table: spec.Name, Want: want, Got: len(row), Row: i}
		}
	}

	var binds []driven.BindValue
	for _, row := range rows {
		binds = append(binds, row...)
	}

	stmt := driven.Statement{SQL: upsertSQL(spec, len(rows)), Binds: binds}
	return u.exec.ExecBatchWrite(ctx, []driven.Statement{stmt})
}

// conflictColumn picks the single ON CONFLICT column: the declared
// conflict target, else the first PK, else the first UNIQUE, else the
// first column.
func conflictColumn(spec TableSpec) string {
	if len(spec.ConflictTarget) > 0 {
		return spec.ConflictTarget[0]
	}
	for _, c := range spec.Columns {
		if c.PK {
			return c.Name
		}
	}
	for _, c := range spec.Columns {
		if c.Unique {
			return c.Name
		}
	}
	return spec.Columns[0].Name
}

func createTableSQL(spec TableSpec) string {
	var cols []string
	for _, c := range spec.Columns {
		var sb strings.Builder
		sb.WriteString(c.Name)
		sb.WriteByte(' ')
		sb.WriteString(columnTypeSQL(c))
		if c.PK {
			sb.WriteString(" PRIMARY KEY")
		}
		if c.NotNull {
			sb.WriteString(" NOT NULL")
		}
		if c.Unique && !c.PK {
			sb.WriteString(" UNIQUE")
		}
		if c.HasDflt {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(c.Default)
		}
		cols = append(cols, sb.String())
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", spec.Name, strings.Join(cols, ", "))
}

func columnTypeSQL(c ColumnSpec) string {
	switch c.Type {
	case ColText:
		return "TEXT"
	case ColInteger:
		return "INTEGER"
	case ColBoolean:
		return "BOOLEAN"
	case ColBinary:
		return "BLOB"
	case ColFloat:
		return "FLOAT"
	case ColDouble:
		return "DOUBLE"
	case ColJson:
		return "JSON"
	case ColCustom:
		return c.Raw
	default:
		return "TEXT"
	}
}

func upsertSQL(spec TableSpec, rowCount int) string {
	names := make([]string, len(spec.Columns))
	holes := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		names[i] = c.Name
		holes[i] = "?"
	}
	rowHole := "(" + strings.Join(holes, ", ") + ")"
	valueRows := make([]string, rowCount)
	for i := range valueRows {
		valueRows[i] = rowHole
	}

	conflict := conflictColumn(spec)
	var sets []string
	for _, c := range spec.Columns {
		if c.Name == conflict {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c.Name, c.Name))
	}

	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s ON CONFLICT(%s) %s",
		spec.Name,
		strings.Join(names, ", "),
		strings.Join(valueRows, ", "),
		conflict,
		action,
	)
}
