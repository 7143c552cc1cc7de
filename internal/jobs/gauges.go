package jobs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/metrics"
)

// RefreshGauges обновляет гейджи очереди заявок и объёма журнала пропусков.
func RefreshGauges(database *sql.DB) Job {
	return func(ctx context.Context) error {
		pending, err := db.CountPendingUsers(ctx, database)
		if err != nil {
			return fmt.Errorf("count pending users: %w", err)
		}
		absences, err := db.CountAllAbsences(ctx, database)
		if err != nil {
			return fmt.Errorf("count absences: %w", err)
		}
		metrics.PendingUsers.Set(float64(pending))
		metrics.AbsencesTotal.Set(float64(absences))
		return nil
	}
}
