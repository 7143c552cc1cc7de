// Package scope вычисляет, какие группы, студенты и пропуски видны пользователю,
// и отвечает на вопросы о правах. Проверки ролей в обработчиках не дублируются.
package scope

import (
	"context"
	"fmt"
	"sort"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/models"
)

// Subject — аутентифицированный пользователь с ролью: Admin, Curator или Leader.
type Subject interface {
	UserID() int64
	Role() models.Role
	subject()
}

type Admin struct{ ID int64 }
type Curator struct{ ID int64 }
type Leader struct{ ID int64 }

func (a Admin) UserID() int64 { return a.ID }
func (a Admin) Role() models.Role { return models.Admin }
func (Admin) subject() {}
func (c Curator) UserID() int64 { return c.ID }
func (c Curator) Role() models.Role { return models.Curator }
func (Curator) subject() {}
func (l Leader) UserID() int64 { return l.ID }
func (l Leader) Role() models.Role { return models.Leader }
func (Leader) subject() {}

// SubjectOf строит субъекта из пользователя. false — роль неизвестна
// или учётная запись неактивна (ожидает решения / отклонена).
func SubjectOf(u *models.User) (Subject, bool) {
	if u == nil || !u.Active() {
		return nil, false
	}
	switch u.Role {
	case models.Admin:
		return Admin{ID: u.ID}, true
	case models.Curator:
		return Curator{ID: u.ID}, true
	case models.Leader:
		return Leader{ID: u.ID}, true
	}
	return nil, false
}

// Scope — видимое множество групп. All — без ограничений (админ).
type Scope struct {
	All      bool
	GroupIDs map[int64]struct{}
}

// FromGroups вычисляет область видимости по текущему состоянию групп.
func FromGroups(s Subject, groups []models.Group) Scope {
	sc := Scope{GroupIDs: make(map[int64]struct{})}
	switch v := s.(type) {
	case Admin:
		sc.All = true
		for _, g := range groups {
			sc.GroupIDs[g.ID] = struct{}{}
		}
	case Curator:
		for _, g := range groups {
			if g.CuratorID != nil && *g.CuratorID == v.ID {
				sc.GroupIDs[g.ID] = struct{}{}
			}
		}
	case Leader:
		for _, g := range groups {
			if g.LeaderID != nil && *g.LeaderID == v.ID {
				sc.GroupIDs[g.ID] = struct{}{}
				break
			}
		}
	}
	return sc
}

// Resolve загружает группы заново на каждый вызов.
func Resolve(ctx context.Context, q db.Queryer, s Subject) (Scope, error) {
	var groups []models.Group
	switch v := s.(type) {
	case Admin:
		return Scope{All: true, GroupIDs: map[int64]struct{}{}}, nil
	case Curator:
		gs, err := db.ListGroupsByCurator(ctx, q, v.ID)
		if err != nil {
			return Scope{}, fmt.Errorf("curator groups: %w", err)
		}
		groups = gs
	case Leader:
		g, err := db.GetGroupByLeader(ctx, q, v.ID)
		if err != nil {
			return Scope{}, fmt.Errorf("leader group: %w", err)
		}
		if g != nil {
			groups = append(groups, *g)
		}
	default:
		return Scope{}, apperr.Forbidden()
	}
	return FromGroups(s, groups), nil
}

func (sc Scope) ContainsGroup(groupID int64) bool {
	if sc.All {
		return true
	}
	_, ok := sc.GroupIDs[groupID]
	return ok
}

// ContainsStudent — студент без группы виден только при All.
func (sc Scope) ContainsStudent(st models.Student) bool {
	if st.GroupID == nil {
		return sc.All
	}
	return sc.ContainsGroup(*st.GroupID)
}

func (sc Scope) Empty() bool { return !sc.All && len(sc.GroupIDs) == 0 }

// IDs — отсортированные id групп.
func (sc Scope) IDs() []int64 {
	out := make([]int64, 0, len(sc.GroupIDs))
	for id := range sc.GroupIDs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Visibility — представление для запросов к БД.
func (sc Scope) Visibility() db.Visibility {
	if sc.All {
		return db.Visibility{All: true}
	}
	return db.Visibility{GroupIDs: sc.IDs()}
}

func IsAdmin(s Subject) bool {
	_, ok := s.(Admin)
	return ok
}

func RequireAdmin(s Subject) error {
	if !IsAdmin(s) {
		return apperr.Forbidden()
	}
	return nil
}

func CanReadStudents(s Subject) error {
	if s == nil {
		return apperr.Forbidden()
	}
	return nil
}

func CanWriteStudents(s Subject) error {
	switch s.(type) {
	case Admin, Curator:
		return nil
	}
	return apperr.Forbidden()
}

func CanWriteAbsences(s Subject) error {
	switch s.(type) {
	case Admin, Curator, Leader:
		return nil
	}
	return apperr.Forbidden()
}

func CanManageGroups(s Subject) error { return RequireAdmin(s) }
