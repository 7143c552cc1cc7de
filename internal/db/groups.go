package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/Spok95/attendance-web/internal/models"
)

func scanGroup(r rowScanner) (*models.Group, error) {
	var (
		g                   models.Group
		curatorID, leaderID sql.NullInt64
	)
	if err := r.Scan(&g.ID, &g.Name, &curatorID, &leaderID); err != nil {
		return nil, err
	}
	g.CuratorID = int64Ptr(curatorID)
	g.LeaderID = int64Ptr(leaderID)
	return &g, nil
}

func GetGroupByID(ctx context.Context, q Queryer, id int64) (*models.Group, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	g, err := scanGroup(q.QueryRowContext(ctx,
		`SELECT id, name, curator_id, leader_id FROM groups WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func GetGroupByName(ctx context.Context, q Queryer, name string) (*models.Group, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	g, err := scanGroup(q.QueryRowContext(ctx,
		`SELECT id, name, curator_id, leader_id FROM groups WHERE name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// ListGroups — все группы по имени.
func ListGroups(ctx context.Context, q Queryer) ([]models.Group, error) {
	return queryGroups(ctx, q, `SELECT id, name, curator_id, leader_id FROM groups ORDER BY name`)
}

func ListGroupsByCurator(ctx context.Context, q Queryer, curatorID int64) ([]models.Group, error) {
	return queryGroups(ctx, q,
		`SELECT id, name, curator_id, leader_id FROM groups WHERE curator_id = $1 ORDER BY name`, curatorID)
}

// GetGroupByLeader — группа старосты или (nil, nil).
func GetGroupByLeader(ctx context.Context, q Queryer, leaderID int64) (*models.Group, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	g, err := scanGroup(q.QueryRowContext(ctx,
		`SELECT id, name, curator_id, leader_id FROM groups WHERE leader_id = $1`, leaderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func queryGroups(ctx context.Context, q Queryer, query string, args ...any) ([]models.Group, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// ListGroupViews — группы из области видимости с именами и счётчиками.
func ListGroupViews(ctx context.Context, q Queryer, vis Visibility) ([]models.GroupView, error) {
	if vis.Empty() {
		return nil, nil
	}
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	rows, err := q.QueryContext(ctx, `
		SELECT g.id, g.name, g.curator_id, g.leader_id, c.full_name, l.full_name,
		       (SELECT COUNT(*) FROM students s WHERE s.group_id = g.id),
		       (SELECT COUNT(*) FROM absences a JOIN students s ON s.id = a.student_id WHERE s.group_id = g.id)
		FROM groups g
		LEFT JOIN users c ON c.id = g.curator_id
		LEFT JOIN users l ON l.id = g.leader_id
		WHERE $1 OR g.id = ANY($2)
		ORDER BY g.name`, vis.All, pq.Array(vis.GroupIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.GroupView
	for rows.Next() {
		var (
			v                   models.GroupView
			curatorID, leaderID sql.NullInt64
			curator, leader     sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.Name, &curatorID, &leaderID, &curator, &leader,
			&v.StudentsCount, &v.AbsencesCount); err != nil {
			return nil, err
		}
		v.CuratorID = int64Ptr(curatorID)
		v.LeaderID = int64Ptr(leaderID)
		v.CuratorName = stringPtr(curator)
		v.LeaderName = stringPtr(leader)
		out = append(out, v)
	}
	return out, rows.Err()
}

// CreateGroup вставляет группу. Повтор имени ловится ограничением groups_name_key.
func CreateGroup(ctx context.Context, q Queryer, g *models.Group) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	return q.QueryRowContext(ctx,
		`INSERT INTO groups (name, curator_id) VALUES ($1, $2) RETURNING id`,
		g.Name, nullInt64(g.CuratorID)).Scan(&g.ID)
}

// EnsureGroup создаёт группу, если её ещё нет (для начального заполнения).
func EnsureGroup(ctx context.Context, q Queryer, name string) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	_, err := q.ExecContext(ctx, `INSERT INTO groups (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	return err
}

func UpdateGroup(ctx context.Context, q Queryer, g *models.Group) (bool, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	res, err := q.ExecContext(ctx,
		`UPDATE groups SET name = $2, curator_id = $3 WHERE id = $1`,
		g.ID, g.Name, nullInt64(g.CuratorID))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteGroup удаляет группу; студенты и их пропуски уходят каскадом.
func DeleteGroup(ctx context.Context, q Queryer, id int64) (bool, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	res, err := q.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func GroupNameTaken(ctx context.Context, q Queryer, name string, excludeID int64) (bool, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM groups WHERE name = $1 AND id <> $2)`, name, excludeID,
	).Scan(&exists)
	return exists, err
}

// ClaimLeaderSlot назначает старосту, только если место свободно.
// false — группа уже занята (или не существует).
func ClaimLeaderSlot(ctx context.Context, q Queryer, groupID, leaderID int64) (bool, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	res, err := q.ExecContext(ctx,
		`UPDATE groups SET leader_id = $2 WHERE id = $1 AND leader_id IS NULL`, groupID, leaderID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AssignCurator ставит куратора всем существующим группам из списка; возвращает число обновлённых.
func AssignCurator(ctx context.Context, q Queryer, curatorID int64, groupIDs []int64) (int64, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	res, err := q.ExecContext(ctx,
		`UPDATE groups SET curator_id = $1 WHERE id = ANY($2)`, curatorID, pq.Array(groupIDs))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReleaseUserGroups снимает пользователя с кураторства и старостата во всех группах.
func ReleaseUserGroups(ctx context.Context, q Queryer, userID int64) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	_, err := q.ExecContext(ctx, `
		UPDATE groups
		SET curator_id = CASE WHEN curator_id = $1 THEN NULL ELSE curator_id END,
		    leader_id  = CASE WHEN leader_id = $1 THEN NULL ELSE leader_id END
		WHERE curator_id = $1 OR leader_id = $1`, userID)
	return err
}
