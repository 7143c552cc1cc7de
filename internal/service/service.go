// Package service — бизнес-операции: регистрация и подтверждение, группы, студенты,
// пропуски, отчёты, статистика и импорт. Каждое изменение — одна транзакция
// вместе с записью в журнал аудита.
package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/auth"
	"github.com/Spok95/attendance-web/internal/ctxutil"
	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/logging"
	"github.com/Spok95/attendance-web/internal/metrics"
	"github.com/Spok95/attendance-web/internal/models"
	"github.com/Spok95/attendance-web/internal/scope"
)

type Deps struct {
	DB       *sql.DB
	Hasher   auth.Hasher
	Log      *zap.Logger
	Now      func() time.Time
	Location *time.Location

	AdminRegistrationKey string
	PDFFontPath          string
}

type core struct {
	db       *sql.DB
	hasher   auth.Hasher
	log      *zap.Logger
	now      func() time.Time
	loc      *time.Location
	adminKey string
	pdfFont  string
}

type Service struct {
	Identity *Identity
	Groups   *Groups
	Students *Students
	Absences *Absences
	Reports  *Reports
	Stats    *Stats
	Imports  *Imports
	CMKs     *CMKs
}

func New(d Deps) *Service {
	c := &core{
		db:       d.DB,
		hasher:   d.Hasher,
		log:      d.Log,
		now:      d.Now,
		loc:      d.Location,
		adminKey: d.AdminRegistrationKey,
		pdfFont:  d.PDFFontPath,
	}
	if c.hasher == nil {
		c.hasher = auth.NewBcryptHasher()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.pdfFont == "" {
		c.log.Warn("PDF_FONT_PATH not set, cyrillic in PDF exports will be transliterated")
	}
	return &Service{
		Identity: &Identity{c},
		Groups:   &Groups{c},
		Students: &Students{c},
		Absences: &Absences{c},
		Reports:  &Reports{c},
		Stats:    &Stats{c},
		Imports:  &Imports{c},
		CMKs:     &CMKs{c},
	}
}

func (c *core) logger(ctx context.Context) *zap.Logger { return logging.FromContext(ctx, c.log) }

func (c *core) clock() time.Time { return c.now().In(c.loc) }

func (c *core) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return db.WithTx(ctx, c.db, fn)
}

// resolve — область видимости субъекта по текущему состоянию групп.
func (c *core) resolve(ctx context.Context, q db.Queryer, s scope.Subject) (scope.Scope, error) {
	if s == nil {
		return scope.Scope{}, apperr.Forbidden()
	}
	return scope.Resolve(ctx, q, s)
}

// audit дописывает запись журнала в транзакции изменения. IP берётся из контекста запроса.
func (c *core) audit(ctx context.Context, q db.Queryer, actorID int64, action, description string) error {
	e := &models.AuditEntry{Action: action, Description: description}
	if actorID > 0 {
		id := actorID
		e.UserID = &id
	}
	if ip := ctxutil.ClientIP(ctx); ip != "" {
		e.IPAddress = &ip
	}
	if err := db.InsertAudit(ctx, q, e); err != nil {
		return err
	}
	metrics.AuditEntries.WithLabelValues(action).Inc()
	return nil
}

// uniqueConflict переводит нарушение уникальности в ConflictError с понятным текстом.
func uniqueConflict(err error) error {
	if err == nil {
		return nil
	}
	constraint, ok := db.UniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case db.ConstraintUserPhone:
		return apperr.Conflict("Пользователь с таким телефоном уже существует")
	case db.ConstraintGroupName:
		return apperr.Conflict("Группа с таким названием уже существует")
	case db.ConstraintGroupLeader:
		return apperr.Conflict("У этой группы уже есть староста")
	case db.ConstraintCMKName:
		return apperr.Conflict("ЦМК с таким названием уже существует")
	}
	return apperr.Conflict("Запись уже существует")
}

// isAppErr — ошибка уже типизирована и не требует обёртки.
func isAppErr(err error) bool {
	var e *apperr.Error
	return errors.As(err, &e)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// optString — nil для пустой строки после обрезки пробелов.
func optString(p *string) *string {
	if p == nil {
		return nil
	}
	s := trim(*p)
	if s == "" {
		return nil
	}
	return &s
}
