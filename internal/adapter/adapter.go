// Package adapter provides SourceAdapter implementations for the supported
// data source families: postgres (pgx), sqlite and duckdb (database/sql),
// and an in-memory adapter for tests and demos.
package adapter

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/tessera-data/tessera"
)

// sanitizeIdentifier strips quoting and whitespace from a table or column
// identifier before it is interpolated into SQL. Identifiers come from
// source metadata, not user query text, so this is a guard against
// accidents rather than an escape layer.
func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, " \"'`;")
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	return strings.Join(clean, ".")
}

// placeholderFunc renders the i-th (1-based) bind placeholder for a dialect.
type placeholderFunc func(i int) string

func dollarPlaceholder(i int) string { return fmt.Sprintf("$%d", i) }

func questionPlaceholder(int) string { return "?" }

// buildSelect renders a full-collection SELECT with best-effort filter
// pushdown: equality conditions become a WHERE conjunction and MaxRows a
// LIMIT. The executor re-applies every condition, so pushdown only has to
// be sound, never complete.
func buildSelect(collection string, filter *tessera.FilterSpec, placeholder placeholderFunc) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(sanitizeIdentifier(collection))

	var args []any
	if filter != nil && len(filter.Equals) > 0 {
		b.WriteString(" WHERE ")
		first := true
		for _, field := range sortedFilterFields(filter.Equals) {
			if !first {
				b.WriteString(" AND ")
			}
			first = false
			args = append(args, filter.Equals[field].ToAny())
			b.WriteString(sanitizeIdentifier(field))
			b.WriteString(" = ")
			b.WriteString(placeholder(len(args)))
		}
	}
	if filter != nil && filter.MaxRows > 0 {
		fmt.Fprintf(&b, " LIMIT %d", filter.MaxRows)
	}
	return b.String(), args
}

func sortedFilterFields(equals map[string]tessera.Value) []string {
	fields := make([]string, 0, len(equals))
	for field := range equals {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// scanSQLRows drains a database/sql result set into typed rows. Driver
// values go through tessera.FromAny, so []byte becomes string and integer
// widths collapse to number.
func scanSQLRows(rows *sql.Rows) ([]tessera.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []tessera.Row
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(tessera.Row, len(columns))
		for i, col := range columns {
			row[col] = tessera.FromAny(raw[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// requireConfig fetches a mandatory key from an adapter config map.
func requireConfig(config map[string]string, key string) (string, error) {
	v, ok := config[key]
	if !ok || v == "" {
		return "", fmt.Errorf("config key %q is required", key)
	}
	return v, nil
}
