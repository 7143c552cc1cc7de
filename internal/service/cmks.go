package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/models"
	"github.com/Spok95/attendance-web/internal/scope"
)

// CMKs — цикловые методические комиссии.
type CMKs struct{ *core }

// List открыт всем: список нужен форме регистрации куратора.
func (s *CMKs) List(ctx context.Context) ([]models.CMK, error) {
	out, err := db.ListCMKs(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("list cmks: %w", err)
	}
	return out, nil
}

func (s *CMKs) Create(ctx context.Context, actor scope.Subject, name string) (*models.CMK, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	c := &models.CMK{Name: trim(name)}
	if c.Name == "" {
		return nil, apperr.Validation("Укажите название ЦМК").WithField("name", "required")
	}
	err := s.tx(ctx, func(tx *sql.Tx) error {
		if err := db.CreateCMK(ctx, tx, c); err != nil {
			if cerr := uniqueConflict(err); isAppErr(cerr) {
				return cerr
			}
			return fmt.Errorf("create cmk: %w", err)
		}
		return s.audit(ctx, tx, actor.UserID(), models.ActionAddCMK,
			fmt.Sprintf("Добавлена ЦМК: %s", c.Name))
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
