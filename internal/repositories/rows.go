package repositories

import (
	"fmt"
	"sort"

	"github.com/asakaida/kankei/internal/entities"
)

// Row is a stored record as field name -> value
type Row map[string]interface{}

// FilterRows keeps the rows matching every field condition, in their original order.
// Expression conditions are rejected; they are evaluated by the engine.
func FilterRows(rows []Row, where []entities.Condition) ([]Row, error) {
	for _, cond := range where {
		if cond.IsExpression() {
			return nil, fmt.Errorf("expression condition %q cannot be evaluated by the repository", cond.Expr)
		}
		if err := cond.Validate(); err != nil {
			return nil, err
		}
	}

	out := rows[:0]
	for _, row := range rows {
		if matchesAll(row, where) {
			out = append(out, row)
		}
	}
	return out, nil
}

func matchesAll(row Row, where []entities.Condition) bool {
	for _, cond := range where {
		if !Matches(row[cond.Field], cond) {
			return false
		}
	}
	return true
}

// Matches evaluates a field condition against a single value with SQL semantics:
// comparisons against NULL are false.
func Matches(v interface{}, cond entities.Condition) bool {
	switch cond.Op {
	case entities.OpIsNull:
		return v == nil
	case entities.OpNotNull:
		return v != nil
	case entities.OpIn:
		values, _ := cond.Value.([]interface{})
		for _, candidate := range values {
			if entities.ValuesEqual(v, candidate) {
				return true
			}
		}
		return false
	case entities.OpEq:
		return v != nil && entities.ValuesEqual(v, cond.Value)
	case entities.OpNe:
		return v != nil && !entities.ValuesEqual(v, cond.Value)
	}

	cmp, ok := entities.CompareValues(v, cond.Value)
	if !ok || v == nil {
		return false
	}
	switch cond.Op {
	case entities.OpLt:
		return cmp < 0
	case entities.OpLe:
		return cmp <= 0
	case entities.OpGt:
		return cmp > 0
	case entities.OpGe:
		return cmp >= 0
	}
	return false
}

// SortRows orders rows like SQL would, with NULLs first for ascending terms.
// The sort is stable, so rows equal on every term keep their order.
func SortRows(rows []Row, order entities.Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, term := range order {
			cmp := compareNullable(rows[i][term.Field], rows[j][term.Field])
			if cmp == 0 {
				continue
			}
			if term.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareNullable(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	cmp, ok := entities.CompareValues(a, b)
	if !ok {
		cmp, _ = entities.CompareValues(entities.KeyString(a), entities.KeyString(b))
	}
	return cmp
}

// Copy returns a shallow copy of the row
func (r Row) Copy() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
