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

type Students struct{ *core }

type StudentInput struct {
	FullName string
	GroupID  *int64
	Phone    *string
}

// List — студенты в области видимости, с необязательным отбором по группе и ФИО.
func (s *Students) List(ctx context.Context, actor scope.Subject, f db.StudentFilter) ([]models.StudentView, error) {
	if err := scope.CanReadStudents(actor); err != nil {
		return nil, err
	}
	sc, err := s.resolve(ctx, s.db, actor)
	if err != nil {
		return nil, err
	}
	out, err := db.ListStudents(ctx, s.db, sc.Visibility(), f)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return out, nil
}

// loadVisible — студент из области видимости; чужой студент — AuthorizationError.
func loadVisible(ctx context.Context, q db.Queryer, sc scope.Scope, id int64) (*models.Student, error) {
	st, err := db.GetStudentByID(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	if st == nil {
		return nil, apperr.NotFound("Студент не найден")
	}
	if !sc.ContainsStudent(*st) {
		return nil, apperr.Forbidden()
	}
	return st, nil
}

func (s *Students) checkInput(ctx context.Context, q db.Queryer, sc scope.Scope, in *StudentInput) error {
	in.FullName = trim(in.FullName)
	in.Phone = optString(in.Phone)
	if in.FullName == "" {
		return apperr.Validation("Укажите ФИО студента").WithField("full_name", "required")
	}
	if in.GroupID == nil {
		if !sc.All {
			return apperr.Validation("Выберите группу").WithField("group_id", "required")
		}
		return nil
	}
	if !sc.ContainsGroup(*in.GroupID) {
		return apperr.Forbidden()
	}
	g, err := db.GetGroupByID(ctx, q, *in.GroupID)
	if err != nil {
		return fmt.Errorf("get group: %w", err)
	}
	if g == nil {
		return apperr.Validation("Группа не найдена").WithField("group_id", "unknown")
	}
	return nil
}

func (s *Students) Create(ctx context.Context, actor scope.Subject, in StudentInput) (*models.Student, error) {
	if err := scope.CanWriteStudents(actor); err != nil {
		return nil, err
	}
	st := &models.Student{}
	err := s.tx(ctx, func(tx *sql.Tx) error {
		sc, err := s.resolve(ctx, tx, actor)
		if err != nil {
			return err
		}
		if err := s.checkInput(ctx, tx, sc, &in); err != nil {
			return err
		}
		st.FullName, st.GroupID, st.Phone = in.FullName, in.GroupID, in.Phone
		if err := db.CreateStudent(ctx, tx, st); err != nil {
			return fmt.Errorf("create student: %w", err)
		}
		return s.audit(ctx, tx, actor.UserID(), models.ActionAddStudent,
			fmt.Sprintf("Добавлен студент: %s", st.FullName))
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Students) Update(ctx context.Context, actor scope.Subject, id int64, in StudentInput) (*models.Student, error) {
	if err := scope.CanWriteStudents(actor); err != nil {
		return nil, err
	}
	var out *models.Student
	err := s.tx(ctx, func(tx *sql.Tx) error {
		sc, err := s.resolve(ctx, tx, actor)
		if err != nil {
			return err
		}
		st, err := loadVisible(ctx, tx, sc, id)
		if err != nil {
			return err
		}
		if err := s.checkInput(ctx, tx, sc, &in); err != nil {
			return err
		}
		st.FullName, st.GroupID, st.Phone = in.FullName, in.GroupID, in.Phone
		if _, err := db.UpdateStudent(ctx, tx, st); err != nil {
			return fmt.Errorf("update student: %w", err)
		}
		out = st
		return s.audit(ctx, tx, actor.UserID(), models.ActionEditStudent,
			fmt.Sprintf("Изменён студент: %s", st.FullName))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete удаляет студента вместе с его пропусками.
func (s *Students) Delete(ctx context.Context, actor scope.Subject, id int64) error {
	if err := scope.CanWriteStudents(actor); err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		sc, err := s.resolve(ctx, tx, actor)
		if err != nil {
			return err
		}
		st, err := loadVisible(ctx, tx, sc, id)
		if err != nil {
			return err
		}
		if _, err := db.DeleteStudent(ctx, tx, id); err != nil {
			return fmt.Errorf("delete student: %w", err)
		}
		return s.audit(ctx, tx, actor.UserID(), models.ActionDeleteStudent,
			fmt.Sprintf("Удалён студент: %s", st.FullName))
	})
}
