package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/Spok95/attendance-web/internal/models"
)

func GetStudentByID(ctx context.Context, q Queryer, id int64) (*models.Student, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	var (
		s       models.Student
		groupID sql.NullInt64
		phone   sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, full_name, group_id, phone FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.FullName, &groupID, &phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.GroupID = int64Ptr(groupID)
	s.Phone = stringPtr(phone)
	return &s, nil
}

// StudentFilter — отбор студентов в пределах видимости.
type StudentFilter struct {
	GroupID *int64
	Name    string // подстрока ФИО, без учёта регистра
	Limit   int
}

const studentViewSelect = `
	SELECT s.id, s.full_name, s.group_id, s.phone, g.name, c.full_name, l.full_name
	FROM students s
	LEFT JOIN groups g ON g.id = s.group_id
	LEFT JOIN users c ON c.id = g.curator_id
	LEFT JOIN users l ON l.id = g.leader_id`

func scanStudentView(r rowScanner) (*models.StudentView, error) {
	var (
		v                        models.StudentView
		groupID                  sql.NullInt64
		phone, group, cur, leadr sql.NullString
	)
	if err := r.Scan(&v.ID, &v.FullName, &groupID, &phone, &group, &cur, &leadr); err != nil {
		return nil, err
	}
	v.GroupID = int64Ptr(groupID)
	v.Phone = stringPtr(phone)
	v.GroupName = stringPtr(group)
	v.CuratorName = stringPtr(cur)
	v.LeaderName = stringPtr(leadr)
	return &v, nil
}

// ListStudents — студенты, видимые через vis. Без групп видны только при vis.All.
func ListStudents(ctx context.Context, q Queryer, vis Visibility, f StudentFilter) ([]models.StudentView, error) {
	if vis.Empty() {
		return nil, nil
	}
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	var groupID sql.NullInt64
	if f.GroupID != nil {
		groupID = sql.NullInt64{Int64: *f.GroupID, Valid: true}
	}
	name := strings.TrimSpace(f.Name)
	query := studentViewSelect + `
		WHERE ($1 OR s.group_id = ANY($2))
		  AND ($3::bigint IS NULL OR s.group_id = $3)
		  AND ($4 = '' OR s.full_name ILIKE '%' || $4 || '%')
		ORDER BY g.name NULLS LAST, s.full_name, s.id`
	args := []any{vis.All, pq.Array(vis.GroupIDs), groupID, name}
	if f.Limit > 0 {
		query += ` LIMIT $5`
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.StudentView
	for rows.Next() {
		v, err := scanStudentView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func CreateStudent(ctx context.Context, q Queryer, s *models.Student) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	return q.QueryRowContext(ctx,
		`INSERT INTO students (full_name, group_id, phone) VALUES ($1, $2, $3) RETURNING id`,
		s.FullName, nullInt64(s.GroupID), nullString(s.Phone)).Scan(&s.ID)
}

func UpdateStudent(ctx context.Context, q Queryer, s *models.Student) (bool, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	res, err := q.ExecContext(ctx,
		`UPDATE students SET full_name = $2, group_id = $3, phone = $4 WHERE id = $1`,
		s.ID, s.FullName, nullInt64(s.GroupID), nullString(s.Phone))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteStudent удаляет студента; пропуски уходят каскадом.
func DeleteStudent(ctx context.Context, q Queryer, id int64) (bool, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	res, err := q.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
