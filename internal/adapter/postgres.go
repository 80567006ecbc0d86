package adapter

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tessera-data/tessera"
	"go.uber.org/zap"
)

// pgQuerier is the slice of the pgx pool surface the adapter uses. Narrowed
// so tests can substitute pgxmock.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresAdapter reads collections from a PostgreSQL (or Aurora DSQL)
// database. Recognized config keys: "url" (connection string) or the
// discrete "host", "port", "user", "password", "dbname", "sslmode", plus
// "schema" (defaults to public) and "auth" ("dsql-iam" generates an IAM
// connect token in place of the password).
type PostgresAdapter struct {
	pool   pgQuerier
	schema string
}

// NewPostgresAdapter creates an unconnected adapter.
func NewPostgresAdapter() *PostgresAdapter {
	return &PostgresAdapter{schema: "public"}
}

// newPostgresAdapterWithPool is the test seam for pgxmock.
func newPostgresAdapterWithPool(pool pgQuerier, schema string) *PostgresAdapter {
	if schema == "" {
		schema = "public"
	}
	return &PostgresAdapter{pool: pool, schema: schema}
}

func (a *PostgresAdapter) Connect(ctx context.Context, config map[string]string) error {
	connString, err := postgresConnString(ctx, config)
	if err != nil {
		return err
	}
	if schema := config["schema"]; schema != "" {
		a.schema = sanitizeIdentifier(schema)
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	a.pool = pool
	return nil
}

// postgresConnString assembles a connection string from the config map,
// generating a DSQL IAM token as the password when auth=dsql-iam.
func postgresConnString(ctx context.Context, config map[string]string) (string, error) {
	if url := config["url"]; url != "" {
		return url, nil
	}
	host, err := requireConfig(config, "host")
	if err != nil {
		return "", err
	}
	user, err := requireConfig(config, "user")
	if err != nil {
		return "", err
	}
	port := config["port"]
	if port == "" {
		port = "5432"
	}
	dbname := config["dbname"]
	if dbname == "" {
		dbname = user
	}
	sslmode := config["sslmode"]
	if sslmode == "" {
		sslmode = "prefer"
	}

	password := config["password"]
	if config["auth"] == "dsql-iam" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return "", fmt.Errorf("load aws config for dsql auth: %w", err)
		}
		endpoint := fmt.Sprintf("%s:%s", host, port)
		token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
		if err != nil {
			zap.S().Warnw("dsql token generation failed, falling back to password",
				"host", host, "error", err)
		} else {
			password = token
			sslmode = "require"
		}
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode), nil
}

func (a *PostgresAdapter) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		 ORDER BY table_name`, a.schema)
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

func (a *PostgresAdapter) GetCollectionSchema(ctx context.Context, name string) ([]tessera.Field, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT column_name, data_type FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`, a.schema, name)
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
		fields = append(fields, tessera.Field{Name: column, Type: logicalType(dataType)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func (a *PostgresAdapter) ExecuteQuery(ctx context.Context, name string, filter *tessera.FilterSpec) ([]tessera.Row, error) {
	query, args := buildSelect(name, filter, dollarPlaceholder)
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()
	return scanPgxRows(rows)
}

func (a *PostgresAdapter) Disconnect(ctx context.Context) error {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return nil
}

// scanPgxRows drains a pgx result set into typed rows.
func scanPgxRows(rows pgx.Rows) ([]tessera.Row, error) {
	descriptions := rows.FieldDescriptions()
	columns := make([]string, len(descriptions))
	for i, d := range descriptions {
		columns[i] = string(d.Name)
	}

	var out []tessera.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(tessera.Row, len(columns))
		for i, col := range columns {
			row[col] = tessera.FromAny(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// logicalType maps common SQL column types onto the engine's field types.
func logicalType(dataType string) string {
	switch dataType {
	case "integer", "bigint", "smallint", "numeric", "real", "double precision",
		"decimal", "float", "double", "int", "int2", "int4", "int8":
		return "number"
	case "boolean", "bool":
		return "bool"
	case "timestamp", "timestamptz", "timestamp without time zone",
		"timestamp with time zone", "date", "datetime":
		return "time"
	case "json", "jsonb":
		return "object"
	default:
		return "string"
	}
}
