package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Spok95/attendance-web/internal/models"
)

const userColumns = `u.id, u.full_name, u.phone, u.telegram, u.email, u.role, u.password_hash,
	u.is_confirmed, u.is_rejected, u.cmk_id, u.created_at, u.confirmed_at, u.rejected_at,
	u.confirmed_by_id, u.rejected_by_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (*models.User, error) {
	var (
		u                       models.User
		role                    string
		telegram, email         sql.NullString
		cmkID, confBy, rejBy    sql.NullInt64
		confirmedAt, rejectedAt sql.NullTime
	)
	if err := r.Scan(&u.ID, &u.FullName, &u.Phone, &telegram, &email, &role, &u.PasswordHash,
		&u.IsConfirmed, &u.IsRejected, &cmkID, &u.CreatedAt, &confirmedAt, &rejectedAt,
		&confBy, &rejBy); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.Telegram = stringPtr(telegram)
	u.Email = stringPtr(email)
	u.CMKID = int64Ptr(cmkID)
	u.ConfirmedByID = int64Ptr(confBy)
	u.RejectedByID = int64Ptr(rejBy)
	if confirmedAt.Valid {
		t := confirmedAt.Time
		u.ConfirmedAt = &t
	}
	if rejectedAt.Valid {
		t := rejectedAt.Time
		u.RejectedAt = &t
	}
	return &u, nil
}

// GetUserByID возвращает (nil, nil), если пользователя нет.
func GetUserByID(ctx context.Context, q Queryer, id int64) (*models.User, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	u, err := scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func GetUserByPhone(ctx context.Context, q Queryer, phone string) (*models.User, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	u, err := scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.phone = $1`, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// CreateUser вставляет пользователя и заполняет ID и CreatedAt.
func CreateUser(ctx context.Context, q Queryer, u *models.User) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	return q.QueryRowContext(ctx, `
		INSERT INTO users (full_name, phone, telegram, email, role, password_hash, is_confirmed, cmk_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		u.FullName, u.Phone, nullString(u.Telegram), nullString(u.Email), string(u.Role),
		u.PasswordHash, u.IsConfirmed, nullInt64(u.CMKID),
	).Scan(&u.ID, &u.CreatedAt)
}

func PhoneTaken(ctx context.Context, q Queryer, phone string, excludeID int64) (bool, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE phone = $1 AND id <> $2)`, phone, excludeID,
	).Scan(&exists)
	return exists, err
}

// ConfirmUser переводит заявку pending → confirmed. false — если заявка уже решена
// или пользователь не куратор/староста.
func ConfirmUser(ctx context.Context, q Queryer, userID, adminID int64, at time.Time) (bool, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	res, err := q.ExecContext(ctx, `
		UPDATE users
		SET is_confirmed = TRUE, confirmed_at = $3, confirmed_by_id = $2
		WHERE id = $1 AND role IN ('curator', 'leader')
		  AND is_confirmed = FALSE AND is_rejected = FALSE`, userID, adminID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RejectUser — симметрично ConfirmUser.
func RejectUser(ctx context.Context, q Queryer, userID, adminID int64, at time.Time) (bool, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	res, err := q.ExecContext(ctx, `
		UPDATE users
		SET is_rejected = TRUE, rejected_at = $3, rejected_by_id = $2
		WHERE id = $1 AND role IN ('curator', 'leader')
		  AND is_confirmed = FALSE AND is_rejected = FALSE`, userID, adminID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListPendingUsers — кураторы и старосты, ожидающие решения; для старосты — его группа.
func ListPendingUsers(ctx context.Context, q Queryer) ([]models.PendingUser, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	rows, err := q.QueryContext(ctx, `
		SELECT `+userColumns+`, g.name
		FROM users u
		LEFT JOIN groups g ON g.leader_id = u.id
		WHERE u.role IN ('curator', 'leader') AND u.is_confirmed = FALSE AND u.is_rejected = FALSE
		ORDER BY u.created_at, u.id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.PendingUser
	for rows.Next() {
		var groupName sql.NullString
		u, err := scanUser(scanFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &groupName)...)
		}))
		if err != nil {
			return nil, err
		}
		out = append(out, models.PendingUser{User: *u, GroupName: stringPtr(groupName)})
	}
	return out, rows.Err()
}

// ListUsersByRole — пользователи роли; confirmedOnly отсекает неподтверждённых и отклонённых.
func ListUsersByRole(ctx context.Context, q Queryer, role models.Role, confirmedOnly bool) ([]models.User, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	rows, err := q.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		WHERE u.role = $1 AND ($2 = FALSE OR (u.is_confirmed = TRUE AND u.is_rejected = FALSE))
		ORDER BY LOWER(u.full_name), u.id`, string(role), confirmedOnly)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func UpdateUserProfile(ctx context.Context, q Queryer, u *models.User) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	_, err := q.ExecContext(ctx, `
		UPDATE users SET full_name = $2, phone = $3, email = $4, telegram = $5
		WHERE id = $1`,
		u.ID, u.FullName, u.Phone, nullString(u.Email), nullString(u.Telegram))
	return err
}

func UpdatePasswordHash(ctx context.Context, q Queryer, userID int64, hash string) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	_, err := q.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
	return err
}

// DeleteUser удаляет пользователя; ссылки из groups/users обнуляются внешними ключами.
func DeleteUser(ctx context.Context, q Queryer, userID int64) (bool, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	res, err := q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }
