package internal

import (
	"sort"

	"github.com/tessera-data/tessera"
	"go.uber.org/zap"
)

// Execute runs a parsed query against already-fetched collections. It is a
// pure function over its inputs: no I/O, no retries, no shared state, so any
// number of executions may run concurrently.
//
// Pipeline, in fixed order: base rows, filter, joins, projection, order,
// limit. A missing base collection yields an empty result rather than an
// error so a multi-source query still returns whatever resolved.
func Execute(ast *ParsedQuery, collections map[string][]tessera.Row, params map[string]tessera.Value) ([]tessera.Row, error) {
	rows := collections[ast.FromCollection]
	if rows == nil {
		zap.S().Debugw("base collection absent, returning empty result",
			"collection", ast.FromCollection)
		rows = []tessera.Row{}
	}

	rows, err := applyFilter(rows, ast.Where, params)
	if err != nil {
		return nil, err
	}

	for _, join := range ast.Joins {
		rows = applyJoin(rows, join, collections)
	}

	rows = applyProjection(rows, ast.SelectFields)
	applyOrder(rows, ast.OrderBy)

	if ast.Limit != nil && len(rows) > *ast.Limit {
		rows = rows[:*ast.Limit]
	}
	return rows, nil
}

// applyFilter keeps rows satisfying every condition in the conjunction.
// Every :param reference must have a binding; an unresolved parameter fails
// the whole query instead of silently dropping the condition.
func applyFilter(rows []tessera.Row, conds []Condition, params map[string]tessera.Value) ([]tessera.Row, error) {
	if len(conds) == 0 {
		return rows, nil
	}

	resolved := make([]Condition, len(conds))
	for i, cond := range conds {
		if cond.Value.Kind == OperandParam {
			bound, ok := params[cond.Value.Param]
			if !ok {
				return nil, tessera.NewUnknownParameterError(cond.Value.Param)
			}
			cond.Value = Operand{Kind: OperandLiteral, Literal: bound}
		}
		resolved[i] = cond
	}

	out := make([]tessera.Row, 0, len(rows))
	for _, row := range rows {
		keep := true
		for _, cond := range resolved {
			if !evalCondition(row, cond) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

func evalCondition(row tessera.Row, cond Condition) bool {
	left, ok := lookupField(row, cond.Field)
	if !ok {
		return false
	}

	var right tessera.Value
	switch cond.Value.Kind {
	case OperandField:
		right, ok = lookupField(row, cond.Value.Field)
		if !ok {
			return false
		}
	default:
		right = cond.Value.Literal
	}

	switch cond.Op {
	case OpEq:
		return left.Equal(right)
	case OpNe:
		return !left.Equal(right)
	case OpGt:
		return !left.IsNull() && !right.IsNull() && left.Compare(right) > 0
	case OpGte:
		return !left.IsNull() && !right.IsNull() && left.Compare(right) >= 0
	case OpLt:
		return !left.IsNull() && !right.IsNull() && left.Compare(right) < 0
	case OpLte:
		return !left.IsNull() && !right.IsNull() && left.Compare(right) <= 0
	default:
		return false
	}
}

// lookupField resolves a field reference on a row, preferring the qualified
// "table.field" key and falling back to the bare name.
func lookupField(row tessera.Row, ref FieldRef) (tessera.Value, bool) {
	if ref.Table != "" {
		if v, ok := row[ref.Table+"."+ref.Name]; ok {
			return v, true
		}
	}
	v, ok := row[ref.Name]
	return v, ok
}

// applyJoin performs a left-outer nested-loop join. Every base row survives:
// each matching join-table row emits one combined row with the join-table
// fields qualified as "<collection>.<field>" to avoid collisions, and a base
// row with no match passes through unchanged. A join against an absent
// collection is skipped with the base rows intact.
//
// O(base x joinTable) is acceptable here: inputs are cache-sized snapshots,
// not unbounded streams.
func applyJoin(base []tessera.Row, join JoinClause, collections map[string][]tessera.Row) []tessera.Row {
	joinRows, ok := collections[join.Collection]
	if !ok {
		zap.S().Debugw("join collection absent, passing base rows through",
			"collection", join.Collection)
		return base
	}

	// Orient the ON clause: the side naming the join collection probes the
	// join rows, the other side reads the (possibly already joined) base row.
	baseRef, joinRef := join.Left, join.Right
	if join.Left.Table == join.Collection {
		baseRef, joinRef = join.Right, join.Left
	}

	out := make([]tessera.Row, 0, len(base))
	for _, row := range base {
		baseVal, haveBase := lookupField(row, baseRef)
		matched := false
		if haveBase && !baseVal.IsNull() {
			for _, jr := range joinRows {
				jv, ok := jr[joinRef.Name]
				if !ok || !jv.Equal(baseVal) {
					continue
				}
				matched = true
				combined := row.Clone()
				for name, v := range jr {
					combined[join.Collection+"."+name] = v
				}
				out = append(out, combined)
			}
		}
		if !matched {
			out = append(out, row)
		}
	}
	return out
}

// applyProjection builds output rows from the select list. "*" passes rows
// through unchanged. Qualified references project under their bare field
// name, matching the shape callers expect from SELECT users.name.
func applyProjection(rows []tessera.Row, fields []FieldRef) []tessera.Row {
	if len(fields) == 0 {
		return rows
	}
	for _, f := range fields {
		if f.IsStar() {
			return rows
		}
	}

	out := make([]tessera.Row, len(rows))
	for i, row := range rows {
		projected := make(tessera.Row, len(fields))
		for _, f := range fields {
			if v, ok := lookupField(row, f); ok {
				projected[f.Name] = v
			}
		}
		out[i] = projected
	}
	return out
}

// applyOrder sorts rows in place with a stable multi-key sort. Null fields
// sort first ascending and last descending; ties fall through to the next
// key in listed order.
func applyOrder(rows []tessera.Row, keys []OrderKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, key := range keys {
			a, _ := lookupField(rows[i], key.Field)
			b, _ := lookupField(rows[j], key.Field)
			cmp := a.Compare(b)
			if cmp == 0 {
				continue
			}
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}
