package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/Spok95/attendance-web/internal/models"
)

func GetAbsenceByID(ctx context.Context, q Queryer, id int64) (*models.AbsenceView, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	v, err := scanAbsenceView(q.QueryRowContext(ctx, absenceViewSelect+` WHERE a.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

const absenceViewSelect = `
	SELECT a.id, a.student_id, a.date, a.reason, a.lessons_count, s.full_name, s.group_id, g.name
	FROM absences a
	JOIN students s ON s.id = a.student_id
	LEFT JOIN groups g ON g.id = s.group_id`

func scanAbsenceView(r rowScanner) (*models.AbsenceView, error) {
	var (
		v         models.AbsenceView
		reason    sql.NullString
		groupID   sql.NullInt64
		groupName sql.NullString
	)
	if err := r.Scan(&v.ID, &v.StudentID, &v.Date, &reason, &v.LessonsCount,
		&v.StudentName, &groupID, &groupName); err != nil {
		return nil, err
	}
	v.Reason = stringPtr(reason)
	v.GroupID = int64Ptr(groupID)
	v.GroupName = stringPtr(groupName)
	return &v, nil
}

// Window — интервал дат (включительно, по календарным дням). Nil-граница — без ограничения.
type Window struct {
	From *time.Time
	To   *time.Time
}

func (w Window) args() (sql.NullTime, sql.NullTime) {
	var from, to sql.NullTime
	if w.From != nil {
		from = sql.NullTime{Time: *w.From, Valid: true}
	}
	if w.To != nil {
		to = sql.NullTime{Time: *w.To, Valid: true}
	}
	return from, to
}

type AbsenceFilter struct {
	StudentID *int64
	GroupID   *int64
	Window    Window
}

// ListAbsences — пропуски студентов, видимых через vis, от новых к старым.
func ListAbsences(ctx context.Context, q Queryer, vis Visibility, f AbsenceFilter) ([]models.AbsenceView, error) {
	if vis.Empty() {
		return nil, nil
	}
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	from, to := f.Window.args()
	rows, err := q.QueryContext(ctx, absenceViewSelect+`
		WHERE ($1 OR s.group_id = ANY($2))
		  AND ($3::bigint IS NULL OR a.student_id = $3)
		  AND ($4::bigint IS NULL OR s.group_id = $4)
		  AND ($5::date IS NULL OR a.date::date >= $5::date)
		  AND ($6::date IS NULL OR a.date::date <= $6::date)
		ORDER BY a.date DESC, a.id DESC`,
		vis.All, pq.Array(vis.GroupIDs), nullInt64(f.StudentID), nullInt64(f.GroupID), from, to)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.AbsenceView
	for rows.Next() {
		v, err := scanAbsenceView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func CreateAbsence(ctx context.Context, q Queryer, a *models.Absence) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	return q.QueryRowContext(ctx, `
		INSERT INTO absences (student_id, date, reason, lessons_count)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		a.StudentID, a.Date, nullString(a.Reason), a.LessonsCount).Scan(&a.ID)
}

func UpdateAbsence(ctx context.Context, q Queryer, a *models.Absence) (bool, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	res, err := q.ExecContext(ctx, `
		UPDATE absences SET student_id = $2, date = $3, reason = $4, lessons_count = $5
		WHERE id = $1`,
		a.ID, a.StudentID, a.Date, nullString(a.Reason), a.LessonsCount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func DeleteAbsence(ctx context.Context, q Queryer, id int64) (bool, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	res, err := q.ExecContext(ctx, `DELETE FROM absences WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReasonCount — число пропусков студента с данной причиной (Reason nil — без причины).
type ReasonCount struct {
	StudentID int64
	Reason    *string
	Count     int
}

// CountAbsencesByReason группирует пропуски студентов по причине в окне.
// Пустая строка причины считается отсутствием причины.
func CountAbsencesByReason(ctx context.Context, q Queryer, studentIDs []int64, w Window) ([]ReasonCount, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	from, to := w.args()
	rows, err := q.QueryContext(ctx, `
		SELECT a.student_id, NULLIF(BTRIM(a.reason), ''), COUNT(*)
		FROM absences a
		WHERE a.student_id = ANY($1)
		  AND ($2::date IS NULL OR a.date::date >= $2::date)
		  AND ($3::date IS NULL OR a.date::date <= $3::date)
		GROUP BY a.student_id, NULLIF(BTRIM(a.reason), '')
		ORDER BY a.student_id`, pq.Array(studentIDs), from, to)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ReasonCount
	for rows.Next() {
		var (
			rc     ReasonCount
			reason sql.NullString
		)
		if err := rows.Scan(&rc.StudentID, &reason, &rc.Count); err != nil {
			return nil, err
		}
		rc.Reason = stringPtr(reason)
		out = append(out, rc)
	}
	return out, rows.Err()
}
