package domain

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// CmpOp enumerates the comparison operators a filter condition can use.
type CmpOp string

const (
	OpEq     CmpOp = "$eq"
	OpNe     CmpOp = "$ne"
	OpGt     CmpOp = "$gt"
	OpGte    CmpOp = "$gte"
	OpLt     CmpOp = "$lt"
	OpLte    CmpOp = "$lte"
	OpIn     CmpOp = "$in"
	OpNin    CmpOp = "$nin"
	OpAll    CmpOp = "$all"
	OpExists CmpOp = "$exists"
	OpSize   CmpOp = "$size"
)

// Cond is a single field comparison.
type Cond struct {
	// Field is the dotted path into the projected front matter.
	Field string

	// Op is the comparison operator.
	Op CmpOp

	// Value is the operand. For OpIn, OpNin and OpAll it must be a list.
	Value any

	// Negate inverts the comparison. A negated condition on a missing
	// field matches.
	Negate bool
}

// Filter is a query tree over index records. Exactly one of And, Or, Not
// or Cond is set on any node.
type Filter struct {
	And  []Filter
	Or   []Filter
	Not  *Filter
	Cond *Cond
}

// SortField names a field to order results by.
type SortField struct {
	Field string
	Desc  bool
}

// FindOptions carries ordering and paging for a query. Skip and Limit
// saturate rather than error when they run past the result set.
type FindOptions struct {
	Sort  []SortField
	Skip  int
	Limit int
}

// ParseFilter builds a Filter from a decoded query document. The shape
// follows the familiar JSON query syntax: bare values mean equality,
// operator objects use the $-prefixed keys, and $and / $or / $not
// combine subtrees.
func ParseFilter(q map[string]any) (Filter, error) {
	var clauses []Filter

	for key, val := range q {
		switch key {
		case "$and", "$or":
			items, ok := val.([]any)
			if !ok {
				return Filter{}, fmt.Errorf("%w: %s expects a list", ErrInvalidFilter, key)
			}
			var subs []Filter
			for _, item := range items {
				m, ok := item.(map[string]any)
				if !ok {
					return Filter{}, fmt.Errorf("%w: %s entries must be objects", ErrInvalidFilter, key)
				}
				sub, err := ParseFilter(m)
				if err != nil {
					return Filter{}, err
				}
				subs = append(subs, sub)
			}
			if key == "$and" {
				clauses = append(clauses, Filter{And: subs})
			} else {
				clauses = append(clauses, Filter{Or: subs})
			}

		case "$not":
			m, ok := val.(map[string]any)
			if !ok {
				return Filter{}, fmt.Errorf("%w: $not expects an object", ErrInvalidFilter)
			}
			sub, err := ParseFilter(m)
			if err != nil {
				return Filter{}, err
			}
			clauses = append(clauses, Filter{Not: &sub})

		default:
			if strings.HasPrefix(key, "$") {
				return Filter{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, key)
			}
			sub, err := parseFieldExpr(key, val)
			if err != nil {
				return Filter{}, err
			}
			clauses = append(clauses, sub...)
		}
	}

	switch len(clauses) {
	case 0:
		return Filter{And: nil}, nil
	case 1:
		return clauses[0], nil
	default:
		return Filter{And: clauses}, nil
	}
}

func parseFieldExpr(field string, val any) ([]Filter, error) {
	obj, ok := val.(map[string]any)
	if !ok || !hasOperatorKey(obj) {
		return []Filter{{Cond: &Cond{Field: field, Op: OpEq, Value: val}}}, nil
	}

	var out []Filter
	for op, arg := range obj {
		switch CmpOp(op) {
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpExists, OpSize:
			out = append(out, Filter{Cond: &Cond{Field: field, Op: CmpOp(op), Value: arg}})
		case OpIn, OpNin, OpAll:
			if _, ok := arg.([]any); !ok {
				return nil, fmt.Errorf("%w: %s on %q expects a list", ErrInvalidFilter, op, field)
			}
			out = append(out, Filter{Cond: &Cond{Field: field, Op: CmpOp(op), Value: arg}})
		default:
			if op == "$not" {
				inner, ok := arg.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("%w: $not on %q expects an operator object", ErrInvalidFilter, field)
				}
				subs, err := parseFieldExpr(field, inner)
				if err != nil {
					return nil, err
				}
				for _, s := range subs {
					c := *s.Cond
					c.Negate = !c.Negate
					out = append(out, Filter{Cond: &c})
				}
				continue
			}
			return nil, fmt.Errorf("%w: unknown operator %q on field %q", ErrInvalidFilter, op, field)
		}
	}
	return out, nil
}

func hasOperatorKey(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

// Matches evaluates the filter against projected front matter. An empty
// filter matches everything.
func (f Filter) Matches(fm map[string]any) bool {
	switch {
	case f.Cond != nil:
		return f.Cond.matches(fm)
	case f.Not != nil:
		return !f.Not.Matches(fm)
	case f.Or != nil:
		for _, sub := range f.Or {
			if sub.Matches(fm) {
				return true
			}
		}
		return false
	default:
		for _, sub := range f.And {
			if !sub.Matches(fm) {
				return false
			}
		}
		return true
	}
}

func (c Cond) matches(fm map[string]any) bool {
	val, present := ResolveField(fm, c.Field)
	res := evalCmp(c.Op, val, present, c.Value)
	if c.Negate {
		return !res
	}
	return res
}

func evalCmp(op CmpOp, val any, present bool, arg any) bool {
	switch op {
	case OpEq:
		return present && valueMatches(val, arg)
	case OpNe:
		return !present || !valueMatches(val, arg)
	case OpGt, OpGte, OpLt, OpLte:
		if !present {
			return false
		}
		ord, ok := compareSameType(val, arg)
		if !ok {
			return false
		}
		switch op {
		case OpGt:
			return ord > 0
		case OpGte:
			return ord >= 0
		case OpLt:
			return ord < 0
		default:
			return ord <= 0
		}
	case OpIn:
		if !present {
			return false
		}
		for _, item := range arg.([]any) {
			if valueMatches(val, item) {
				return true
			}
		}
		return false
	case OpNin:
		if !present {
			return true
		}
		for _, item := range arg.([]any) {
			if valueMatches(val, item) {
				return false
			}
		}
		return true
	case OpAll:
		arr, ok := val.([]any)
		if !present || !ok {
			return false
		}
		for _, want := range arg.([]any) {
			found := false
			for _, have := range arr {
				if deepEqual(have, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case OpExists:
		want, _ := arg.(bool)
		return present == want
	case OpSize:
		if !present {
			return false
		}
		n, ok := asFloat(arg)
		if !ok {
			return false
		}
		switch t := val.(type) {
		case []any:
			return float64(len(t)) == n
		case string:
			return float64(len(t)) == n
		default:
			return false
		}
	default:
		return false
	}
}

// valueMatches reports equality against a field value, matching array
// fields element-wise the way list taxonomies are queried.
func valueMatches(val, arg any) bool {
	if deepEqual(val, arg) {
		return true
	}
	if arr, ok := val.([]any); ok {
		for _, item := range arr {
			if deepEqual(item, arg) {
				return true
			}
		}
	}
	return false
}

// deepEqual compares two decoded values with numbers normalised, so an
// integer out of a TOML decoder equals the same number out of JSON.
func deepEqual(a, b any) bool {
	if na, ok := asFloat(a); ok {
		nb, ok := asFloat(b)
		return ok && na == nb
	}
	switch ta := a.(type) {
	case nil:
		return b == nil
	case string:
		tb, ok := b.(string)
		return ok && ta == tb
	case bool:
		tb, ok := b.(bool)
		return ok && ta == tb
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !deepEqual(ta[i], tb[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		tb, ok := b.(map[string]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, va := range ta {
			vb, ok := tb[k]
			if !ok || !deepEqual(va, vb) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// compareSameType orders two values when both are numbers or both are
// strings. Any other pairing does not compare.
func compareSameType(a, b any) (int, bool) {
	if na, ok := asFloat(a); ok {
		nb, ok := asFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ResolveField looks up a dotted path in decoded front matter, falling
// back to the flat root alias when the sectioned path is absent.
func ResolveField(fm map[string]any, path string) (any, bool) {
	if v, ok := lookupPath(fm, path); ok {
		return v, true
	}
	if alias, ok := rootAliases[path]; ok {
		if v, ok := lookupPath(fm, alias); ok {
			return v, true
		}
	}
	return nil, false
}

func lookupPath(fm map[string]any, path string) (any, bool) {
	if !strings.Contains(path, ".") {
		v, ok := fm[path]
		return v, ok
	}
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, false
	}
	results := expr.Get(fm)
	if len(results) == 0 {
		return nil, false
	}
	return results[0], true
}

// CompareFieldValues orders two resolved field values for sorting. Values
// of differing types order numbers before strings before booleans.
func CompareFieldValues(a, b any) int {
	if ord, ok := compareSameType(a, b); ok {
		return ord
	}
	return typeRank(a) - typeRank(b)
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 3
	case string:
		return 2
	default:
		if _, ok := asFloat(v); ok {
			return 1
		}
		return 4
	}
}
