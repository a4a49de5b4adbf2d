package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded schema files in lexical order. Every file is
// written to be idempotent so the call is safe on an existing database.
func Migrate(ctx context.Context, q Querier) error {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("db: read migrations: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}

		data, err := migrations.ReadFile(path.Join("migrations", e.Name()))
		if err != nil {
			return fmt.Errorf("db: read %s: %w", e.Name(), err)
		}
		if _, err := q.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("db: apply %s: %w", e.Name(), err)
		}
	}

	return nil
}

// Tables lists the mutable tables in dependency order, children first.
var Tables = []string{
	"outbox",
	"payout_intents",
	"credits",
	"pending_decryptions",
	"votes",
	"disputes",
	"user_reputation",
	"arbitrators",
}
