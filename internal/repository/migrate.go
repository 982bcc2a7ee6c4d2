package repository

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	SchemaLedger  = "ledger"
	SchemaBalance = "balance"
)

// Migrate applies the idempotent schema for one service.
func Migrate(ctx context.Context, db *pgxpool.Pool, schema string) error {
	ddl, err := migrations.ReadFile("migrations/" + schema + ".sql")
	if err != nil {
		return fmt.Errorf("read %s schema: %w", schema, err)
	}
	if _, err := db.Exec(ctx, string(ddl)); err != nil {
		return fmt.Errorf("apply %s schema: %w", schema, err)
	}
	return nil
}
