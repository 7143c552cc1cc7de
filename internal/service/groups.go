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

type Groups struct{ *core }

type GroupInput struct {
	Name      string
	CuratorID *int64
}

// List — группы в области видимости с куратором, старостой и счётчиками.
func (s *Groups) List(ctx context.Context, actor scope.Subject) ([]models.GroupView, error) {
	sc, err := s.resolve(ctx, s.db, actor)
	if err != nil {
		return nil, err
	}
	out, err := db.ListGroupViews(ctx, s.db, sc.Visibility())
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return out, nil
}

// Public — все группы для форм регистрации.
func (s *Groups) Public(ctx context.Context) ([]models.Group, error) {
	out, err := db.ListGroups(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return out, nil
}

func (s *Groups) Get(ctx context.Context, actor scope.Subject, id int64) (*models.Group, error) {
	sc, err := s.resolve(ctx, s.db, actor)
	if err != nil {
		return nil, err
	}
	g, err := db.GetGroupByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if g == nil {
		return nil, apperr.NotFound("Группа не найдена")
	}
	if !sc.ContainsGroup(g.ID) {
		return nil, apperr.Forbidden()
	}
	return g, nil
}

// checkGroupInput: имя обязательно и уникально (с учётом регистра), куратор —
// подтверждённый пользователь с ролью куратора.
func (s *Groups) checkGroupInput(ctx context.Context, tx *sql.Tx, in *GroupInput, excludeID int64) error {
	in.Name = trim(in.Name)
	if in.Name == "" {
		return apperr.Validation("Укажите название группы").WithField("name", "required")
	}
	taken, err := db.GroupNameTaken(ctx, tx, in.Name, excludeID)
	if err != nil {
		return fmt.Errorf("group name taken: %w", err)
	}
	if taken {
		return apperr.Conflict("Группа с таким названием уже существует")
	}
	if in.CuratorID == nil {
		return nil
	}
	u, err := db.GetUserByID(ctx, tx, *in.CuratorID)
	if err != nil {
		return fmt.Errorf("get curator: %w", err)
	}
	if u == nil || u.Role != models.Curator || !u.Active() {
		return apperr.Validation("Куратор не найден или не подтверждён").WithField("curator_id", "invalid")
	}
	return nil
}

func (s *Groups) Create(ctx context.Context, actor scope.Subject, in GroupInput) (*models.Group, error) {
	if err := scope.CanManageGroups(actor); err != nil {
		return nil, err
	}
	g := &models.Group{}
	err := s.tx(ctx, func(tx *sql.Tx) error {
		if err := s.checkGroupInput(ctx, tx, &in, 0); err != nil {
			return err
		}
		g.Name, g.CuratorID = in.Name, in.CuratorID
		if err := db.CreateGroup(ctx, tx, g); err != nil {
			if cerr := uniqueConflict(err); isAppErr(cerr) {
				return cerr
			}
			return fmt.Errorf("create group: %w", err)
		}
		return s.audit(ctx, tx, actor.UserID(), models.ActionAddGroup,
			fmt.Sprintf("Добавлена группа: %s", g.Name))
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Groups) Update(ctx context.Context, actor scope.Subject, id int64, in GroupInput) (*models.Group, error) {
	if err := scope.CanManageGroups(actor); err != nil {
		return nil, err
	}
	var out *models.Group
	err := s.tx(ctx, func(tx *sql.Tx) error {
		g, err := db.GetGroupByID(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("get group: %w", err)
		}
		if g == nil {
			return apperr.NotFound("Группа не найдена")
		}
		if err := s.checkGroupInput(ctx, tx, &in, id); err != nil {
			return err
		}
		old := g.Name
		g.Name, g.CuratorID = in.Name, in.CuratorID
		if _, err := db.UpdateGroup(ctx, tx, g); err != nil {
			if cerr := uniqueConflict(err); isAppErr(cerr) {
				return cerr
			}
			return fmt.Errorf("update group: %w", err)
		}
		out = g
		return s.audit(ctx, tx, actor.UserID(), models.ActionEditGroup,
			fmt.Sprintf("Изменена группа: %s → %s", old, g.Name))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete удаляет группу вместе со студентами и их пропусками.
func (s *Groups) Delete(ctx context.Context, actor scope.Subject, id int64) error {
	if err := scope.CanManageGroups(actor); err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		g, err := db.GetGroupByID(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("get group: %w", err)
		}
		if g == nil {
			return apperr.NotFound("Группа не найдена")
		}
		if _, err := db.DeleteGroup(ctx, tx, id); err != nil {
			return fmt.Errorf("delete group: %w", err)
		}
		return s.audit(ctx, tx, actor.UserID(), models.ActionDeleteGroup,
			fmt.Sprintf("Удалена группа: %s", g.Name))
	})
}
