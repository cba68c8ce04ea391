// Package postgres implements the catalog store on PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacklebox/internal/common"
)

// DB wraps a pgx pool bound to one schema
type DB struct {
	pool   *pgxpool.Pool
	schema string
	logger arbor.ILogger
}

// NewDB connects, then creates the schema and catalog table if missing
func NewDB(ctx context.Context, logger arbor.ILogger, cfg common.PostgresConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 2
	}
	poolCfg.MaxConns = int32(maxConns)
	if cfg.Bouncer {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db := &DB{pool: pool, schema: schema, logger: logger}

	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Str("schema", schema).Int("max_conns", maxConns).Msg("Postgres catalog initialized")
	return db, nil
}

// table returns the schema-qualified, quoted table name
func (d *DB) table(name string) string {
	return pgx.Identifier{d.schema, name}.Sanitize()
}

func (d *DB) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{d.schema}.Sanitize(),
		fmt.Sprintf(schemaSQL, d.table("raw_records")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS raw_records_source_url_idx ON %s (source_url)`, d.table("raw_records")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS raw_records_source_slug_idx ON %s (source_slug, id)`, d.table("raw_records")),
	}
	for _, stmt := range statements {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create catalog schema: %w", err)
		}
	}
	return nil
}

// Pool returns the underlying pool
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

func (d *DB) Close() error {
	d.pool.Close()
	return nil
}
