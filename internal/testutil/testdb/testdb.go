//go:build testutil
// +build testutil

// Package testdb — Postgres в контейнере для интеграционных тестов.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Spok95/attendance-web/internal/db"
)

type DBHandle struct {
	DB   *sql.DB
	stop func(context.Context) error
}

func (h *DBHandle) Close() {
	if h.DB != nil {
		_ = h.DB.Close()
	}
	if h.stop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.stop(ctx)
	}
}

// Start поднимает Postgres в контейнере и накатывает на него встроенные миграции.
func Start(ctx context.Context) (_ *DBHandle, err error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	pg, err := postgres.RunContainer(ctx,
		tc.WithImage("postgres:17-alpine"),
		postgres.WithDatabase("attendance"),
		postgres.WithUsername("attendance"),
		postgres.WithPassword("attendance"),
		tc.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		return nil, fmt.Errorf("run postgres: %w", err)
	}
	h := &DBHandle{stop: pg.Terminate}
	defer func() {
		if err != nil {
			h.Close()
		}
	}()

	uri, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("connection string: %w", err)
	}
	if h.DB, err = sql.Open("postgres", uri); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if err = h.DB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err = db.Migrate(ctx, h.DB); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return h, nil
}

// Reset очищает все таблицы между тестами (схема и goose_db_version остаются).
func Reset(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx,
		`TRUNCATE absences, students, groups, audit_logs, users, cmks RESTART IDENTITY CASCADE`)
	return err
}
