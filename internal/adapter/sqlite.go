package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tessera-data/tessera"
)

// SQLiteAdapter reads collections from an SQLite database file. Recognized
// config keys: "path" (file path or ":memory:").
type SQLiteAdapter struct {
	db *sql.DB
}

// NewSQLiteAdapter creates an unconnected adapter.
func NewSQLiteAdapter() *SQLiteAdapter {
	return &SQLiteAdapter{}
}

func (a *SQLiteAdapter) Connect(ctx context.Context, config map[string]string) error {
	path, err := requireConfig(config, "path")
	if err != nil {
		return err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	a.db = db
	return nil
}

func (a *SQLiteAdapter) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
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

func (a *SQLiteAdapter) GetCollectionSchema(ctx context.Context, name string) ([]tessera.Field, error) {
	rows, err := a.db.QueryContext(ctx,
		fmt.Sprintf("PRAGMA table_info(%s)", sanitizeIdentifier(name)))
	if err != nil {
		return nil, fmt.Errorf("describe table %s: %w", name, err)
	}
	defer rows.Close()

	var fields []tessera.Field
	for rows.Next() {
		var (
			cid        int
			column     string
			columnType string
			notNull    int
			dflt       any
			pk         int
		)
		if err := rows.Scan(&cid, &column, &columnType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		fields = append(fields, tessera.Field{
			Name: column,
			Type: logicalType(strings.ToLower(columnType)),
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

func (a *SQLiteAdapter) ExecuteQuery(ctx context.Context, name string, filter *tessera.FilterSpec) ([]tessera.Row, error) {
	query, args := buildSelect(name, filter, questionPlaceholder)
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()
	return scanSQLRows(rows)
}

func (a *SQLiteAdapter) Disconnect(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
