package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/tessera-data/tessera"
	"go.uber.org/zap"
)

// DuckDBAdapter reads collections from a DuckDB database. Recognized config
// keys: "path" (file path, empty for in-memory) and "extensions"
// (comma-separated extensions to install and load, best effort).
type DuckDBAdapter struct {
	db *sql.DB
}

// NewDuckDBAdapter creates an unconnected adapter.
func NewDuckDBAdapter() *DuckDBAdapter {
	return &DuckDBAdapter{}
}

func (a *DuckDBAdapter) Connect(ctx context.Context, config map[string]string) error {
	dsn := config["path"]
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping duckdb: %w", err)
	}

	for _, ext := range splitList(config["extensions"]) {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("INSTALL %s;", sanitizeIdentifier(ext))); err != nil {
			zap.S().Warnw("duckdb extension install failed", "extension", ext, "error", err)
			continue
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf("LOAD %s;", sanitizeIdentifier(ext))); err != nil {
			zap.S().Warnw("duckdb extension load failed", "extension", ext, "error", err)
		}
	}

	a.db = db
	return nil
}

func (a *DuckDBAdapter) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'main' AND table_type = 'BASE TABLE'
		 ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (a *DuckDBAdapter) GetCollectionSchema(ctx context.Context, name string) ([]tessera.Field, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns
		 WHERE table_schema = 'main' AND table_name = ?
		 ORDER BY ordinal_position`, name)
	if err != nil {
		return nil, fmt.Errorf("describe table %s: %w", name, err)
	}
	defer rows.Close()

	var fields []tessera.Field
	for rows.Next() {
		var column, dataType string
		if err := rows.Scan(&column, &dataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		fields = append(fields, tessera.Field{
			Name: column,
			Type: logicalType(strings.ToLower(dataType)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func (a *DuckDBAdapter) ExecuteQuery(ctx context.Context, name string, filter *tessera.FilterSpec) ([]tessera.Row, error) {
	query, args := buildSelect(name, filter, questionPlaceholder)
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()
	return scanSQLRows(rows)
}

func (a *DuckDBAdapter) Disconnect(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
