package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type seedDBOptions struct {
	host     string
	port     int
	database string
	user     string
	password string
	sslMode  string
	drop     bool
}

func runSeedDB(args []string) error {
	flags := flag.NewFlagSet("seed-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: tessera-tools seed-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := seedDBOptions{}
	flags.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flags.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "tessera"), "database name")
	flags.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flags.BoolVar(&opts.drop, "drop", false, "drop the demo tables before creating them")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	return seedDatabase(opts)
}

// seedDatabase creates two small demo tables that pair up for a cross-table
// join, so a freshly built server has something to federate against.
func seedDatabase(opts seedDBOptions) error {
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, buildConnString(opts))
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := withTx(ctx, conn.Conn(), func(tx pgx.Tx) error {
		return seedTables(ctx, tx, opts)
	}); err != nil {
		return err
	}

	fmt.Println("Demo tables seeded successfully.")
	return nil
}

func seedTables(ctx context.Context, tx pgx.Tx, opts seedDBOptions) error {
	if opts.drop {
		for _, table := range []string{"orders", "users"} {
			if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return fmt.Errorf("drop table %s: %w", table, err)
			}
		}
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			placed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`INSERT INTO users (id, name, active) VALUES
			(1, 'Ann', TRUE),
			(2, 'Bob', TRUE),
			(3, 'Cleo', FALSE)
		ON CONFLICT (id) DO NOTHING`,
		`INSERT INTO orders (id, user_id, amount) VALUES
			(10, 1, 9.5),
			(11, 1, 4.25),
			(12, 3, 2.0)
		ON CONFLICT (id) DO NOTHING`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute seed statement: %w", err)
		}
	}
	return nil
}

func withTx(ctx context.Context, conn *pgx.Conn, fn func(tx pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

func buildConnString(opts seedDBOptions) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(opts.user),
		url.QueryEscape(opts.password),
		opts.host,
		opts.port,
		opts.database,
		opts.sslMode,
	)
}
