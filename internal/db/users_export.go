package db

import (
	"context"

	"github.com/Spok95/attendance-web/internal/models"
)

// UserRow — куратор или староста для выгрузки пользователей.
type UserRow struct {
	models.User
	Groups  string // «Э-101, Э-102»
	CMKName string
}

// ListStaffForExport — кураторы и старосты с их группами; includeInactive добавляет
// ожидающих и отклонённых.
func ListStaffForExport(ctx context.Context, q Queryer, includeInactive bool) ([]UserRow, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	rows, err := q.QueryContext(ctx, `
		SELECT `+userColumns+`,
		       COALESCE((SELECT string_agg(g.name, ', ' ORDER BY g.name)
		                 FROM groups g WHERE g.curator_id = u.id OR g.leader_id = u.id), ''),
		       COALESCE(c.name, '')
		FROM users u
		LEFT JOIN cmks c ON c.id = u.cmk_id
		WHERE u.role IN ('curator', 'leader')
		  AND ($1 OR (u.is_confirmed = TRUE AND u.is_rejected = FALSE))
		ORDER BY u.role, LOWER(u.full_name), u.id`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []UserRow
	for rows.Next() {
		var groups, cmk string
		u, err := scanUser(scanFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &groups, &cmk)...)
		}))
		if err != nil {
			return nil, err
		}
		out = append(out, UserRow{User: *u, Groups: groups, CMKName: cmk})
	}
	return out, rows.Err()
}
