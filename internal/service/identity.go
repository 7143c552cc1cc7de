package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/auth"
	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/models"
	"github.com/Spok95/attendance-web/internal/scope"
)

// Identity — регистрация, вход и подтверждение учётных записей.
type Identity struct{ *core }

type RegisterLeaderInput struct {
	FullName string
	Phone    string
	Telegram *string
	Password string
	GroupID  int64
}

type RegisterCuratorInput struct {
	FullName string
	Phone    string
	Telegram *string
	Password string
	GroupIDs []int64
	CMKID    *int64
}

type RegisterAdminInput struct {
	FullName string
	Phone    string
	Password string
}

func trim(s string) string { return strings.TrimSpace(s) }

func checkCredentials(fullName, phone, password string) error {
	switch {
	case fullName == "":
		return apperr.Validation("Укажите ФИО").WithField("full_name", "required")
	case phone == "":
		return apperr.Validation("Укажите телефон").WithField("phone", "required")
	}
	if err := auth.CheckPassword(password); err != nil {
		return apperr.Validation("Пароль должен быть не короче %d символов", auth.MinPasswordLen).
			WithField("password", "min")
	}
	return nil
}

// createUser проверяет телефон и вставляет пользователя с хэшем пароля.
func (s *Identity) createUser(ctx context.Context, tx *sql.Tx, u *models.User, password string) error {
	taken, err := db.PhoneTaken(ctx, tx, u.Phone, 0)
	if err != nil {
		return fmt.Errorf("phone taken: %w", err)
	}
	if taken {
		return apperr.Conflict("Пользователь с таким телефоном уже существует")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	if err := db.CreateUser(ctx, tx, u); err != nil {
		if cerr := uniqueConflict(err); isAppErr(cerr) {
			return cerr
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// RegisterLeader создаёт заявку старосты и занимает место старосты в группе.
func (s *Identity) RegisterLeader(ctx context.Context, in RegisterLeaderInput) (*models.User, error) {
	in.FullName, in.Phone = trim(in.FullName), trim(in.Phone)
	if err := checkCredentials(in.FullName, in.Phone, in.Password); err != nil {
		return nil, err
	}
	if in.GroupID <= 0 {
		return nil, apperr.Validation("Выберите группу").WithField("group_id", "required")
	}
	u := &models.User{
		FullName: in.FullName,
		Phone:    in.Phone,
		Telegram: optString(in.Telegram),
		Role:     models.Leader,
	}
	err := s.tx(ctx, func(tx *sql.Tx) error {
		g, err := db.GetGroupByID(ctx, tx, in.GroupID)
		if err != nil {
			return fmt.Errorf("get group: %w", err)
		}
		if g == nil {
			return apperr.Validation("Группа не найдена").WithField("group_id", "unknown")
		}
		if g.LeaderID != nil {
			return apperr.Conflict("У этой группы уже есть староста")
		}
		if err := s.createUser(ctx, tx, u, in.Password); err != nil {
			return err
		}
		ok, err := db.ClaimLeaderSlot(ctx, tx, g.ID, u.ID)
		if err != nil {
			if cerr := uniqueConflict(err); isAppErr(cerr) {
				return cerr
			}
			return fmt.Errorf("claim leader slot: %w", err)
		}
		if !ok {
			return apperr.Conflict("У этой группы уже есть староста")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("leader registered", zap.Int64("user_id", u.ID), zap.Int64("group_id", in.GroupID))
	return u, nil
}

// RegisterCurator создаёт заявку куратора; несуществующие группы пропускаются.
func (s *Identity) RegisterCurator(ctx context.Context, in RegisterCuratorInput) (*models.User, error) {
	in.FullName, in.Phone = trim(in.FullName), trim(in.Phone)
	if err := checkCredentials(in.FullName, in.Phone, in.Password); err != nil {
		return nil, err
	}
	u := &models.User{
		FullName: in.FullName,
		Phone:    in.Phone,
		Telegram: optString(in.Telegram),
		Role:     models.Curator,
		CMKID:    in.CMKID,
	}
	var assigned int64
	err := s.tx(ctx, func(tx *sql.Tx) error {
		if in.CMKID != nil {
			cmk, err := db.GetCMKByID(ctx, tx, *in.CMKID)
			if err != nil {
				return fmt.Errorf("get cmk: %w", err)
			}
			if cmk == nil {
				return apperr.Validation("ЦМК не найдена").WithField("cmk_id", "unknown")
			}
		}
		if err := s.createUser(ctx, tx, u, in.Password); err != nil {
			return err
		}
		n, err := db.AssignCurator(ctx, tx, u.ID, in.GroupIDs)
		if err != nil {
			return fmt.Errorf("assign curator: %w", err)
		}
		assigned = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger(ctx).Info("curator registered", zap.Int64("user_id", u.ID), zap.Int64("groups", assigned))
	return u, nil
}

// RegisterAdmin — скрытая регистрация администратора по секретному ключу.
func (s *Identity) RegisterAdmin(ctx context.Context, key string, in RegisterAdminInput) (*models.User, error) {
	if s.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminKey)) != 1 {
		return nil, apperr.Forbidden()
	}
	in.FullName, in.Phone = trim(in.FullName), trim(in.Phone)
	if err := checkCredentials(in.FullName, in.Phone, in.Password); err != nil {
		return nil, err
	}
	u := &models.User{FullName: in.FullName, Phone: in.Phone, Role: models.Admin, IsConfirmed: true}
	err := s.tx(ctx, func(tx *sql.Tx) error {
		if err := s.createUser(ctx, tx, u, in.Password); err != nil {
			return err
		}
		return s.audit(ctx, tx, u.ID, models.ActionRegisterAdmin,
			fmt.Sprintf("Зарегистрирован администратор: %s", u.FullName))
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// EnsureAdmin создаёт администратора при первом запуске, если телефон свободен.
func (s *Identity) EnsureAdmin(ctx context.Context, phone, password, name string) error {
	phone, name = trim(phone), trim(name)
	if phone == "" || password == "" {
		return nil
	}
	if name == "" {
		name = "Администратор"
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		existing, err := db.GetUserByPhone(ctx, tx, phone)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if existing != nil {
			if existing.Role != models.Admin {
				s.logger(ctx).Warn("bootstrap admin phone belongs to another role",
					zap.Int64("user_id", existing.ID), zap.String("role", string(existing.Role)))
			}
			return nil
		}
		u := &models.User{FullName: name, Phone: phone, Role: models.Admin, IsConfirmed: true}
		if err := s.createUser(ctx, tx, u, password); err != nil {
			return err
		}
		s.logger(ctx).Info("bootstrap admin created", zap.Int64("user_id", u.ID))
		return nil
	})
}

// Authenticate проверяет телефон и пароль, затем состояние заявки.
func (s *Identity) Authenticate(ctx context.Context, phone, password string) (*models.User, error) {
	u, err := db.GetUserByPhone(ctx, s.db, trim(phone))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil || !s.hasher.Compare(u.PasswordHash, password) {
		return nil, apperr.Authentication()
	}
	if u.IsRejected {
		return nil, apperr.AccountRejected()
	}
	if u.Role != models.Admin && !u.IsConfirmed {
		return nil, apperr.AccountPending()
	}
	return u, nil
}

// CurrentUser — свежая запись пользователя для сессии; nil, если удалён.
func (s *Identity) CurrentUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := db.GetUserByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Identity) ListPending(ctx context.Context, actor scope.Subject) ([]models.PendingUser, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	out, err := db.ListPendingUsers(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return out, nil
}

// ListConfirmed — подтверждённые пользователи роли (для выпадающих списков).
func (s *Identity) ListConfirmed(ctx context.Context, actor scope.Subject, role models.Role) ([]models.User, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	out, err := db.ListUsersByRole(ctx, s.db, role, true)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// Confirm переводит заявку в confirmed. Решённую заявку изменить нельзя.
func (s *Identity) Confirm(ctx context.Context, actor scope.Subject, userID int64) (*models.User, error) {
	return s.decide(ctx, actor, userID, true)
}

// Reject переводит заявку в rejected и освобождает группы пользователя.
func (s *Identity) Reject(ctx context.Context, actor scope.Subject, userID int64) (*models.User, error) {
	return s.decide(ctx, actor, userID, false)
}

func (s *Identity) decide(ctx context.Context, actor scope.Subject, userID int64, confirm bool) (*models.User, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	var target *models.User
	err := s.tx(ctx, func(tx *sql.Tx) error {
		u, err := db.GetUserByID(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if u == nil || (u.Role != models.Curator && u.Role != models.Leader) {
			return apperr.NotFound("Заявка не найдена")
		}
		at := s.clock()
		var ok bool
		if confirm {
			ok, err = db.ConfirmUser(ctx, tx, userID, actor.UserID(), at)
		} else {
			ok, err = db.RejectUser(ctx, tx, userID, actor.UserID(), at)
		}
		if err != nil {
			return fmt.Errorf("update approval state: %w", err)
		}
		if !ok {
			return apperr.Conflict("Заявка уже рассмотрена")
		}

		action, verb := models.ActionConfirmUser, "Подтверждён"
		if confirm {
			u.IsConfirmed, u.ConfirmedAt = true, &at
		} else {
			action, verb = models.ActionRejectUser, "Отклонён"
			u.IsRejected, u.RejectedAt = true, &at
			if err := db.ReleaseUserGroups(ctx, tx, userID); err != nil {
				return fmt.Errorf("release groups: %w", err)
			}
		}
		target = u
		return s.audit(ctx, tx, actor.UserID(), action,
			fmt.Sprintf("%s пользователь: %s (%s)", verb, u.FullName, u.Role.Title()))
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

type SettingsInput struct {
	FullName        string
	Phone           string
	Email           *string
	Telegram        *string
	CurrentPassword string
	NewPassword     string
}

// UpdateSettings — пользователь меняет свой профиль и, при необходимости, пароль.
func (s *Identity) UpdateSettings(ctx context.Context, actor scope.Subject, in SettingsInput) (*models.User, error) {
	if actor == nil {
		return nil, apperr.Forbidden()
	}
	in.FullName, in.Phone = trim(in.FullName), trim(in.Phone)
	if in.FullName == "" {
		return nil, apperr.Validation("Укажите ФИО").WithField("full_name", "required")
	}
	if in.Phone == "" {
		return nil, apperr.Validation("Укажите телефон").WithField("phone", "required")
	}
	var out *models.User
	err := s.tx(ctx, func(tx *sql.Tx) error {
		u, err := db.GetUserByID(ctx, tx, actor.UserID())
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if u == nil {
			return apperr.NotFound("Пользователь не найден")
		}
		taken, err := db.PhoneTaken(ctx, tx, in.Phone, u.ID)
		if err != nil {
			return fmt.Errorf("phone taken: %w", err)
		}
		if taken {
			return apperr.Conflict("Пользователь с таким телефоном уже существует")
		}
		u.FullName, u.Phone = in.FullName, in.Phone
		u.Email, u.Telegram = optString(in.Email), optString(in.Telegram)
		if err := db.UpdateUserProfile(ctx, tx, u); err != nil {
			if cerr := uniqueConflict(err); isAppErr(cerr) {
				return cerr
			}
			return fmt.Errorf("update profile: %w", err)
		}

		changes := "профиль"
		if in.NewPassword != "" {
			if !s.hasher.Compare(u.PasswordHash, in.CurrentPassword) {
				return apperr.Validation("Неверный текущий пароль").WithField("current_password", "mismatch")
			}
			if err := auth.CheckPassword(in.NewPassword); err != nil {
				return apperr.Validation("Пароль должен быть не короче %d символов", auth.MinPasswordLen).
					WithField("new_password", "min")
			}
			hash, err := s.hasher.Hash(in.NewPassword)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			if err := db.UpdatePasswordHash(ctx, tx, u.ID, hash); err != nil {
				return fmt.Errorf("update password: %w", err)
			}
			u.PasswordHash = hash
			changes = "профиль и пароль"
		}
		out = u
		return s.audit(ctx, tx, u.ID, models.ActionUpdateSettings,
			fmt.Sprintf("Обновлены настройки (%s): %s", changes, u.FullName))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteUser удаляет пользователя; ссылки на него в группах обнуляются.
func (s *Identity) DeleteUser(ctx context.Context, actor scope.Subject, userID int64) error {
	if err := scope.RequireAdmin(actor); err != nil {
		return err
	}
	if actor.UserID() == userID {
		return apperr.Validation("Нельзя удалить собственную учётную запись")
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		u, err := db.GetUserByID(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if u == nil {
			return apperr.NotFound("Пользователь не найден")
		}
		if _, err := db.DeleteUser(ctx, tx, userID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return s.audit(ctx, tx, actor.UserID(), models.ActionDeleteUser,
			fmt.Sprintf("Удалён пользователь: %s (%s)", u.FullName, u.Role.Title()))
	})
}
