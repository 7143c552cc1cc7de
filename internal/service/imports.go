package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/export"
	"github.com/Spok95/attendance-web/internal/models"
	"github.com/Spok95/attendance-web/internal/scope"
)

// Imports — загрузка студентов и пользователей из xlsx/csv.
type Imports struct{ *core }

// ImportResult — число добавленных записей и ошибки по строкам.
type ImportResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

func (r *ImportResult) fail(line int, format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf("Строка %d: ", line)+fmt.Sprintf(format, args...))
}

const rowSaveFailed = "не удалось сохранить запись"

// failRow — строка не сохранилась из-за базы: причина уходит в лог, пользователь видит общую фразу.
func (s *Imports) failRow(ctx context.Context, res *ImportResult, line int, err error) {
	s.logger(ctx).Warn("import row failed", zap.Int("line", line), zap.Error(err))
	res.fail(line, rowSaveFailed)
}

// Upload — загруженный файл.
type Upload struct {
	Filename string
	Data     []byte
}

func readUpload(f Upload, required ...[]string) ([]export.Row, error) {
	if f.Filename == "" || len(f.Data) == 0 {
		return nil, apperr.Validation("Выберите файл").WithField("file", "required")
	}
	rows, err := export.ReadRows(f.Filename, f.Data)
	if errors.Is(err, export.ErrUnsupportedFile) {
		return nil, apperr.Validation("Поддерживаются только CSV и Excel файлы").WithField("file", "format")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "Ошибка при обработке файла", err)
	}
	for _, names := range required {
		if !hasColumn(rows, names...) {
			return nil, apperr.Validation("Файл должен содержать колонку \"%s\"", strings.Join(names, "\" или \"")).
				WithField("file", "columns")
		}
	}
	return rows, nil
}

// hasColumn — есть ли в файле хотя бы одна из колонок names.
func hasColumn(rows []export.Row, names ...string) bool {
	for _, r := range rows {
		for _, n := range names {
			if _, ok := r.Values[n]; ok {
				return true
			}
		}
	}
	return false
}

func savepointName(line int) string { return fmt.Sprintf("import_row_%d", line) }

// ImportStudents — колонки ФИО, Группа и необязательная Телефон.
// Неизвестная группа — ошибка строки, остальные строки импортируются.
func (s *Imports) ImportStudents(ctx context.Context, actor scope.Subject, f Upload) (*ImportResult, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	rows, err := readUpload(f, []string{"ФИО"}, []string{"Группа"})
	if err != nil {
		return nil, err
	}
	res := &ImportResult{}
	err = s.tx(ctx, func(tx *sql.Tx) error {
		groups := map[string]*models.Group{}
		for _, r := range rows {
			name, groupName := r.Get("ФИО"), r.Get("Группа")
			if name == "" {
				continue
			}
			g, ok := groups[groupName]
			if !ok {
				if g, err = db.GetGroupByName(ctx, tx, groupName); err != nil {
					return fmt.Errorf("get group: %w", err)
				}
				groups[groupName] = g
			}
			if g == nil {
				res.fail(r.Line, "Группа \"%s\" не найдена", groupName)
				continue
			}
			st := &models.Student{FullName: name, GroupID: &g.ID}
			if phone := r.Get("Телефон"); phone != "" {
				st.Phone = &phone
			}
			if err := db.Savepoint(ctx, tx, savepointName(r.Line), func() error {
				return db.CreateStudent(ctx, tx, st)
			}); err != nil {
				s.failRow(ctx, res, r.Line, err)
				continue
			}
			res.Imported++
		}
		return s.audit(ctx, tx, actor.UserID(), models.ActionImportStudents,
			fmt.Sprintf("Импортировано %d студентов", res.Imported))
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("students imported", zap.Int("imported", res.Imported), zap.Int("errors", len(res.Errors)))
	return res, nil
}

// ImportUsers — колонки ФИО, Роль, Телефон, Пароль; необязательные Telegram, Email,
// Группы (куратор, через запятую) и Группа (староста). Импортированные сразу подтверждены.
// Ошибка привязки к группе не отменяет создание пользователя.
func (s *Imports) ImportUsers(ctx context.Context, actor scope.Subject, f Upload) (*ImportResult, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	rows, err := readUpload(f, []string{"ФИО"}, []string{"Роль"}, []string{"Телефон"}, []string{"Пароль"})
	if err != nil {
		return nil, err
	}
	now := s.clock()
	res := &ImportResult{}
	err = s.tx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			name, roleText, phone, password := r.Get("ФИО"), r.Get("Роль"), r.Get("Телефон"), r.Get("Пароль")
			if name == "" || roleText == "" || phone == "" || password == "" {
				res.fail(r.Line, "Не все обязательные поля заполнены")
				continue
			}
			role, ok := models.ParseRole(strings.ToLower(roleText))
			if !ok || role == models.Admin {
				res.fail(r.Line, "Неверная роль \"%s\"", roleText)
				continue
			}
			u := &models.User{FullName: name, Phone: phone, Role: role}
			if v := r.Get("Telegram"); v != "" {
				u.Telegram = &v
			}
			if v := r.Get("Email"); v != "" {
				u.Email = &v
			}
			err := db.Savepoint(ctx, tx, savepointName(r.Line), func() error {
				return s.importUser(ctx, tx, u, password, actor.UserID(), now)
			})
			if err != nil {
				if !isAppErr(err) {
					return err
				}
				res.fail(r.Line, "%s", apperr.As(err).Message)
				continue
			}
			res.Imported++
			switch role {
			case models.Curator:
				err = s.attachCurator(ctx, tx, res, r, u.ID)
			case models.Leader:
				err = s.attachLeader(ctx, tx, res, r, u.ID)
			}
			if err != nil {
				return err
			}
		}
		return s.audit(ctx, tx, actor.UserID(), models.ActionImportUsers,
			fmt.Sprintf("Импортировано %d пользователей", res.Imported))
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("users imported", zap.Int("imported", res.Imported), zap.Int("errors", len(res.Errors)))
	return res, nil
}

func (s *Imports) importUser(ctx context.Context, tx *sql.Tx, u *models.User, password string, adminID int64, now time.Time) error {
	if err := checkCredentials(u.FullName, u.Phone, password); err != nil {
		return err
	}
	taken, err := db.PhoneTaken(ctx, tx, u.Phone, 0)
	if err != nil {
		return fmt.Errorf("phone taken: %w", err)
	}
	if taken {
		return apperr.Conflict("Пользователь с телефоном %s уже существует", u.Phone)
	}
	if u.PasswordHash, err = s.hasher.Hash(password); err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := db.CreateUser(ctx, tx, u); err != nil {
		if cerr := uniqueConflict(err); isAppErr(cerr) {
			return cerr
		}
		return fmt.Errorf("create user: %w", err)
	}
	if _, err := db.ConfirmUser(ctx, tx, u.ID, adminID, now); err != nil {
		return fmt.Errorf("confirm user: %w", err)
	}
	u.IsConfirmed = true
	return nil
}

// attachCurator назначает куратора на перечисленные группы; неизвестные группы — ошибки строки.
func (s *Imports) attachCurator(ctx context.Context, tx *sql.Tx, res *ImportResult, r export.Row, userID int64) error {
	var ids []int64
	for _, name := range strings.Split(r.Get("Группы"), ",") {
		name = trim(name)
		if name == "" {
			continue
		}
		g, err := db.GetGroupByName(ctx, tx, name)
		if err != nil {
			return fmt.Errorf("get group: %w", err)
		}
		if g == nil {
			res.fail(r.Line, "Группа \"%s\" не найдена", name)
			continue
		}
		ids = append(ids, g.ID)
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := db.AssignCurator(ctx, tx, userID, ids); err != nil {
		return fmt.Errorf("assign curator: %w", err)
	}
	return nil
}

func (s *Imports) attachLeader(ctx context.Context, tx *sql.Tx, res *ImportResult, r export.Row, userID int64) error {
	name := r.Get("Группа")
	if name == "" {
		return nil
	}
	g, err := db.GetGroupByName(ctx, tx, name)
	if err != nil {
		return fmt.Errorf("get group: %w", err)
	}
	if g == nil {
		res.fail(r.Line, "Группа \"%s\" не найдена", name)
		return nil
	}
	var claimed bool
	err = db.Savepoint(ctx, tx, savepointName(r.Line)+"_leader", func() error {
		var err error
		claimed, err = db.ClaimLeaderSlot(ctx, tx, g.ID, userID)
		return err
	})
	if err != nil {
		if _, ok := db.UniqueViolation(err); !ok {
			return fmt.Errorf("claim leader slot: %w", err)
		}
	}
	if !claimed {
		res.fail(r.Line, "В группе \"%s\" уже есть староста", name)
	}
	return nil
}

// UploadStudents — добавление студентов в одну группу из области видимости.
// Имя берётся из колонки ФИО или full_name.
func (s *Imports) UploadStudents(ctx context.Context, actor scope.Subject, groupID int64, f Upload) (*ImportResult, error) {
	if err := scope.CanWriteStudents(actor); err != nil {
		return nil, err
	}
	if groupID <= 0 {
		return nil, apperr.Validation("Выберите группу").WithField("group_id", "required")
	}
	rows, err := readUpload(f, []string{"ФИО", "full_name"})
	if err != nil {
		return nil, err
	}
	res := &ImportResult{}
	err = s.tx(ctx, func(tx *sql.Tx) error {
		sc, err := s.resolve(ctx, tx, actor)
		if err != nil {
			return err
		}
		if !sc.ContainsGroup(groupID) {
			return apperr.Forbidden()
		}
		g, err := db.GetGroupByID(ctx, tx, groupID)
		if err != nil {
			return fmt.Errorf("get group: %w", err)
		}
		if g == nil {
			return apperr.NotFound("Группа не найдена")
		}
		for _, r := range rows {
			name := r.Get("ФИО", "full_name")
			if name == "" {
				continue
			}
			st := &models.Student{FullName: name, GroupID: &g.ID}
			if err := db.Savepoint(ctx, tx, savepointName(r.Line), func() error {
				return db.CreateStudent(ctx, tx, st)
			}); err != nil {
				s.failRow(ctx, res, r.Line, err)
				continue
			}
			res.Imported++
		}
		return s.audit(ctx, tx, actor.UserID(), models.ActionUploadStudents,
			fmt.Sprintf("Импортировано %d студентов в группу %s", res.Imported, g.Name))
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
