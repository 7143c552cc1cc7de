package db

import (
	"context"
	"database/sql"

	"github.com/Spok95/attendance-web/internal/models"
)

// InsertAudit дописывает запись журнала. Вызывается в транзакции изменения.
func InsertAudit(ctx context.Context, q Queryer, e *models.AuditEntry) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	return q.QueryRowContext(ctx, `
		INSERT INTO audit_logs (user_id, action, description, ip_address)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		nullInt64(e.UserID), e.Action, e.Description, nullString(e.IPAddress),
	).Scan(&e.ID, &e.CreatedAt)
}

// ListRecentAudit — последние записи журнала, новые первыми.
func ListRecentAudit(ctx context.Context, q Queryer, limit int) ([]models.AuditEntry, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, action, description, ip_address, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			e      models.AuditEntry
			userID sql.NullInt64
			ip     sql.NullString
		)
		if err := rows.Scan(&e.ID, &userID, &e.Action, &e.Description, &ip, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = int64Ptr(userID)
		e.IPAddress = stringPtr(ip)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountAudit — число записей с действием action (пустое — все).
func CountAudit(ctx context.Context, q Queryer, action string) (int, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_logs WHERE $1 = '' OR action = $1`, action).Scan(&n)
	return n, err
}
