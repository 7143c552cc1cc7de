package db

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// Totals — счётчики в пределах видимости.
type Totals struct {
	Students int
	Groups   int
	Absences int
}

func CountTotals(ctx context.Context, q Queryer, vis Visibility) (Totals, error) {
	var t Totals
	if vis.Empty() {
		return t, nil
	}
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	err := q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM students s WHERE $1 OR s.group_id = ANY($2)),
			(SELECT COUNT(*) FROM groups g WHERE $1 OR g.id = ANY($2)),
			(SELECT COUNT(*) FROM absences a JOIN students s ON s.id = a.student_id
			 WHERE $1 OR s.group_id = ANY($2))`,
		vis.All, pq.Array(vis.GroupIDs)).Scan(&t.Students, &t.Groups, &t.Absences)
	return t, err
}

// UserCounts — пользователи по ролям (кураторы и старосты — только подтверждённые).
type UserCounts struct {
	Admins   int
	Curators int
	Leaders  int
	Pending  int
	Rejected int
}

func CountUsers(ctx context.Context, q Queryer) (UserCounts, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	var c UserCounts
	err := q.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE role = 'admin'),
			COUNT(*) FILTER (WHERE role = 'curator' AND is_confirmed AND NOT is_rejected),
			COUNT(*) FILTER (WHERE role = 'leader' AND is_confirmed AND NOT is_rejected),
			COUNT(*) FILTER (WHERE role IN ('curator', 'leader') AND NOT is_confirmed AND NOT is_rejected),
			COUNT(*) FILTER (WHERE is_rejected)
		FROM users`).Scan(&c.Admins, &c.Curators, &c.Leaders, &c.Pending, &c.Rejected)
	return c, err
}

func CountPendingUsers(ctx context.Context, q Queryer) (int, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users
		WHERE role IN ('curator', 'leader') AND is_confirmed = FALSE AND is_rejected = FALSE`).Scan(&n)
	return n, err
}

// CountAbsencesInWindow — видимые пропуски в окне дат.
func CountAbsencesInWindow(ctx context.Context, q Queryer, vis Visibility, w Window) (int, error) {
	if vis.Empty() {
		return 0, nil
	}
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	from, to := w.args()
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM absences a JOIN students s ON s.id = a.student_id
		WHERE ($1 OR s.group_id = ANY($2))
		  AND ($3::date IS NULL OR a.date::date >= $3::date)
		  AND ($4::date IS NULL OR a.date::date <= $4::date)`,
		vis.All, pq.Array(vis.GroupIDs), from, to).Scan(&n)
	return n, err
}

// GroupReasonCount — пропуски группы с данной причиной (Reason nil — без причины).
type GroupReasonCount struct {
	GroupID int64
	Reason  *string
	Count   int
}

// CountAbsencesByGroupReason группирует видимые пропуски по группе и причине.
// Студенты без группы не учитываются.
func CountAbsencesByGroupReason(ctx context.Context, q Queryer, vis Visibility, w Window) ([]GroupReasonCount, error) {
	if vis.Empty() {
		return nil, nil
	}
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	from, to := w.args()
	rows, err := q.QueryContext(ctx, `
		SELECT s.group_id, NULLIF(BTRIM(a.reason), ''), COUNT(*)
		FROM absences a
		JOIN students s ON s.id = a.student_id
		WHERE s.group_id IS NOT NULL
		  AND ($1 OR s.group_id = ANY($2))
		  AND ($3::date IS NULL OR a.date::date >= $3::date)
		  AND ($4::date IS NULL OR a.date::date <= $4::date)
		GROUP BY s.group_id, NULLIF(BTRIM(a.reason), '')
		ORDER BY s.group_id`, vis.All, pq.Array(vis.GroupIDs), from, to)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []GroupReasonCount
	for rows.Next() {
		var (
			rc     GroupReasonCount
			reason sql.NullString
		)
		if err := rows.Scan(&rc.GroupID, &reason, &rc.Count); err != nil {
			return nil, err
		}
		rc.Reason = stringPtr(reason)
		out = append(out, rc)
	}
	return out, rows.Err()
}

func CountAllAbsences(ctx context.Context, q Queryer) (int, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM absences`).Scan(&n)
	return n, err
}
