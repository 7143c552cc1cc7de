package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/models"
	"github.com/Spok95/attendance-web/internal/scope"
)

type Absences struct{ *core }

type AbsenceInput struct {
	StudentID    int64
	Date         string
	Reason       *string
	LessonsCount int
}

// форматы даты пропуска: только дата — полночь
var absenceDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseAbsenceDate разбирает дату пропуска в часовом поясе loc.
func ParseAbsenceDate(s string, loc *time.Location) (time.Time, error) {
	s = trim(s)
	for _, layout := range absenceDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.Validation("Неверный формат даты: %q", s).WithField("date", "format")
}

func (s *Absences) List(ctx context.Context, actor scope.Subject, f db.AbsenceFilter) ([]models.AbsenceView, error) {
	sc, err := s.resolve(ctx, s.db, actor)
	if err != nil {
		return nil, err
	}
	out, err := db.ListAbsences(ctx, s.db, sc.Visibility(), f)
	if err != nil {
		return nil, fmt.Errorf("list absences: %w", err)
	}
	return out, nil
}

func (s *Absences) build(in AbsenceInput) (*models.Absence, error) {
	if in.StudentID <= 0 {
		return nil, apperr.Validation("Выберите студента").WithField("student_id", "required")
	}
	date, err := ParseAbsenceDate(in.Date, s.loc)
	if err != nil {
		return nil, err
	}
	if in.LessonsCount == 0 {
		in.LessonsCount = 1
	}
	if in.LessonsCount < 1 {
		return nil, apperr.Validation("Количество занятий должно быть не меньше 1").WithField("lessons_count", "min")
	}
	return &models.Absence{
		StudentID:    in.StudentID,
		Date:         date,
		Reason:       optString(in.Reason),
		LessonsCount: in.LessonsCount,
	}, nil
}

func (s *Absences) Create(ctx context.Context, actor scope.Subject, in AbsenceInput) (*models.Absence, error) {
	if err := scope.CanWriteAbsences(actor); err != nil {
		return nil, err
	}
	a, err := s.build(in)
	if err != nil {
		return nil, err
	}
	err = s.tx(ctx, func(tx *sql.Tx) error {
		sc, err := s.resolve(ctx, tx, actor)
		if err != nil {
			return err
		}
		st, err := loadVisible(ctx, tx, sc, a.StudentID)
		if err != nil {
			return err
		}
		if err := db.CreateAbsence(ctx, tx, a); err != nil {
			return fmt.Errorf("create absence: %w", err)
		}
		return s.audit(ctx, tx, actor.UserID(), models.ActionAddAbsence,
			fmt.Sprintf("Добавлен пропуск: %s, %s", st.FullName, a.Date.Format("02.01.2006")))
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Update требует, чтобы и пропуск, и новый студент были в области видимости.
func (s *Absences) Update(ctx context.Context, actor scope.Subject, id int64, in AbsenceInput) (*models.Absence, error) {
	if err := scope.CanWriteAbsences(actor); err != nil {
		return nil, err
	}
	a, err := s.build(in)
	if err != nil {
		return nil, err
	}
	a.ID = id
	err = s.tx(ctx, func(tx *sql.Tx) error {
		sc, err := s.resolve(ctx, tx, actor)
		if err != nil {
			return err
		}
		if _, err := s.loadVisibleAbsence(ctx, tx, sc, id); err != nil {
			return err
		}
		st, err := loadVisible(ctx, tx, sc, a.StudentID)
		if err != nil {
			return err
		}
		if _, err := db.UpdateAbsence(ctx, tx, a); err != nil {
			return fmt.Errorf("update absence: %w", err)
		}
		return s.audit(ctx, tx, actor.UserID(), models.ActionEditAbsence,
			fmt.Sprintf("Изменён пропуск: %s, %s", st.FullName, a.Date.Format("02.01.2006")))
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Absences) Delete(ctx context.Context, actor scope.Subject, id int64) error {
	if err := scope.CanWriteAbsences(actor); err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		sc, err := s.resolve(ctx, tx, actor)
		if err != nil {
			return err
		}
		v, err := s.loadVisibleAbsence(ctx, tx, sc, id)
		if err != nil {
			return err
		}
		if _, err := db.DeleteAbsence(ctx, tx, id); err != nil {
			return fmt.Errorf("delete absence: %w", err)
		}
		return s.audit(ctx, tx, actor.UserID(), models.ActionDeleteAbsence,
			fmt.Sprintf("Удалён пропуск: %s, %s", v.StudentName, v.Date.Format("02.01.2006")))
	})
}

func (s *Absences) loadVisibleAbsence(ctx context.Context, q db.Queryer, sc scope.Scope, id int64) (*models.AbsenceView, error) {
	v, err := db.GetAbsenceByID(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("get absence: %w", err)
	}
	if v == nil {
		return nil, apperr.NotFound("Пропуск не найден")
	}
	if v.GroupID == nil && !sc.All || v.GroupID != nil && !sc.ContainsGroup(*v.GroupID) {
		return nil, apperr.Forbidden()
	}
	return v, nil
}
