package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/Spok95/attendance-web/internal/db/migrations"
)

// Migrate накатывает встроенные goose-миграции.
func Migrate(ctx context.Context, database *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, database, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
