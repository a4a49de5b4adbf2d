package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"sealedcourt/db"
)

// DSNEnv names the variable that points the harness at an existing database.
const DSNEnv = "SEALEDCOURT_TEST_PG_DSN"

// Harness owns a Postgres database for integration runs: either a
// throwaway container or a private schema inside a shared database.
type Harness struct {
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
	dsn       string
	schema    string
}

// Available reports whether Start can obtain a database.
func Available(ctx context.Context, overrideDSN string) bool {
	if overrideDSN != "" || os.Getenv(DSNEnv) != "" {
		return true
	}
	return dockerAvailable(ctx)
}

// Start connects to overrideDSN or $SEALEDCOURT_TEST_PG_DSN inside a fresh
// schema, or boots a Postgres 16 container when neither is set. The schema
// is migrated before Start returns.
func Start(ctx context.Context, overrideDSN string) (*Harness, error) {
	h := &Harness{dsn: overrideDSN}
	if h.dsn == "" {
		h.dsn = os.Getenv(DSNEnv)
	}

	if h.dsn == "" {
		c, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("sealedcourt"),
			postgres.WithUsername("sealedcourt"),
			postgres.WithPassword("sealedcourt"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			return nil, fmt.Errorf("start postgres container: %w", err)
		}
		h.container = c
		if h.dsn, err = c.ConnectionString(ctx, "sslmode=disable"); err != nil {
			h.Close(ctx)
			return nil, fmt.Errorf("resolve connection string: %w", err)
		}
	} else {
		h.schema = fmt.Sprintf("sealedcourt_run_%d", time.Now().UnixNano())
		if err := h.exec(ctx, "CREATE SCHEMA "+pgx.Identifier{h.schema}.Sanitize()); err != nil {
			return nil, fmt.Errorf("create schema %s: %w", h.schema, err)
		}
	}

	cfg, err := pgxpool.ParseConfig(h.dsn)
	if err != nil {
		h.Close(ctx)
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	cfg.MaxConns = 32
	cfg.MaxConnIdleTime = 30 * time.Second
	if h.schema != "" {
		setPath := "SET search_path TO " + pgx.Identifier{h.schema}.Sanitize()
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, setPath)
			return err
		}
	}

	if h.pool, err = pgxpool.NewWithConfig(ctx, cfg); err != nil {
		h.Close(ctx)
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := db.Migrate(ctx, h.pool); err != nil {
		h.Close(ctx)
		return nil, err
	}
	return h, nil
}

// Pool exposes the configured pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// DSN returns the connection string for direct connections.
func (h *Harness) DSN() string {
	return h.dsn
}

// Reset truncates every court table.
func (h *Harness) Reset(ctx context.Context) error {
	tables := make([]string, len(db.Tables))
	for i, t := range db.Tables {
		tables[i] = pgx.Identifier{t}.Sanitize()
	}
	if _, err := h.pool.Exec(ctx, "TRUNCATE TABLE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE"); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Close tears down the pool, the private schema and the container.
func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.schema != "" {
		_ = h.exec(ctx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{h.schema}.Sanitize()+" CASCADE")
	}
	if h.container != nil {
		_ = h.container.Terminate(ctx)
	}
}

func (h *Harness) exec(ctx context.Context, sql string) error {
	conn, err := pgx.Connect(ctx, h.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, sql)
	return err
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
