package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Spok95/attendance-web/internal/models"
)

func ListCMKs(ctx context.Context, q Queryer) ([]models.CMK, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	rows, err := q.QueryContext(ctx, `SELECT id, name FROM cmks ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.CMK
	for rows.Next() {
		var c models.CMK
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func GetCMKByID(ctx context.Context, q Queryer, id int64) (*models.CMK, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	var c models.CMK
	err := q.QueryRowContext(ctx, `SELECT id, name FROM cmks WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCMK — повтор имени ловится ограничением cmks_name_key.
func CreateCMK(ctx context.Context, q Queryer, c *models.CMK) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()
	return q.QueryRowContext(ctx, `INSERT INTO cmks (name) VALUES ($1) RETURNING id`, c.Name).Scan(&c.ID)
}
