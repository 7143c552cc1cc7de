package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/models"
	"github.com/Spok95/attendance-web/internal/report"
	"github.com/Spok95/attendance-web/internal/scope"
)

// Stats — сводки и аналитика по пропускам.
type Stats struct{ *core }

type Dashboard struct {
	Role          models.Role `json:"role"`
	StudentsCount int         `json:"students_count"`
	GroupsCount   int         `json:"groups_count"`
	AbsencesCount int         `json:"absences_count"`
	PendingCount  int         `json:"pending_count"`
}

// Dashboard — счётчики в области видимости; для админа ещё число заявок.
func (s *Stats) Dashboard(ctx context.Context, actor scope.Subject) (*Dashboard, error) {
	sc, err := s.resolve(ctx, s.db, actor)
	if err != nil {
		return nil, err
	}
	t, err := db.CountTotals(ctx, s.db, sc.Visibility())
	if err != nil {
		return nil, fmt.Errorf("count totals: %w", err)
	}
	d := &Dashboard{Role: actor.Role(), StudentsCount: t.Students, GroupsCount: t.Groups, AbsencesCount: t.Absences}
	if scope.IsAdmin(actor) {
		if d.PendingCount, err = db.CountPendingUsers(ctx, s.db); err != nil {
			return nil, fmt.Errorf("count pending: %w", err)
		}
	}
	return d, nil
}

type AdminOverview struct {
	TotalUsers     int                  `json:"total_users"`
	TotalStudents  int                  `json:"total_students"`
	TotalGroups    int                  `json:"total_groups"`
	TotalAbsences  int                  `json:"total_absences"`
	PendingUsers   int                  `json:"pending_users"`
	CuratorCount   int                  `json:"curator_count"`
	LeaderCount    int                  `json:"leader_count"`
	TodayAbsences  int                  `json:"today_absences"`
	RecentActions  []models.AuditEntry  `json:"recent_actions"`
	PendingPreview []models.PendingUser `json:"pending"`
}

func (s *Stats) AdminOverview(ctx context.Context, actor scope.Subject) (*AdminOverview, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	all := db.Visibility{All: true}
	t, err := db.CountTotals(ctx, s.db, all)
	if err != nil {
		return nil, fmt.Errorf("count totals: %w", err)
	}
	uc, err := db.CountUsers(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	today, err := db.CountAbsencesInWindow(ctx, s.db, all, s.days(0))
	if err != nil {
		return nil, fmt.Errorf("count today absences: %w", err)
	}
	recent, err := db.ListRecentAudit(ctx, s.db, 5)
	if err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}
	pending, err := db.ListPendingUsers(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return &AdminOverview{
		TotalUsers:     uc.Admins + uc.Curators + uc.Leaders + uc.Pending + uc.Rejected,
		TotalStudents:  t.Students,
		TotalGroups:    t.Groups,
		TotalAbsences:  t.Absences,
		PendingUsers:   uc.Pending,
		CuratorCount:   uc.Curators,
		LeaderCount:    uc.Leaders,
		TodayAbsences:  today,
		RecentActions:  recent,
		PendingPreview: pending,
	}, nil
}

// day — календарный день со сдвигом offset от сегодняшнего.
func (s *Stats) day(offset int) time.Time {
	now := s.clock()
	return time.Date(now.Year(), now.Month(), now.Day()+offset, 0, 0, 0, 0, now.Location())
}

// days — окно от дня со сдвигом offset до сегодняшнего включительно.
func (s *Stats) days(offset int) db.Window {
	from, to := s.day(offset), s.day(0)
	return db.Window{From: &from, To: &to}
}

type GroupStat struct {
	Name         string `json:"name"`
	StudentCount int    `json:"student_count"`
	AbsenceCount int    `json:"absence_count"`
	Curator      string `json:"curator"`
	Leader       string `json:"leader"`
}

type SystemStats struct {
	TotalStudents int         `json:"total_students"`
	TotalGroups   int         `json:"total_groups"`
	TotalUsers    int         `json:"total_users"`
	TotalAbsences int         `json:"total_absences"`
	AdminCount    int         `json:"admin_count"`
	CuratorCount  int         `json:"curator_count"`
	LeaderCount   int         `json:"leader_count"`
	PendingUsers  int         `json:"pending_users"`
	RejectedUsers int         `json:"rejected_users"`
	TodayAbsences int         `json:"today_absences"`
	WeekAbsences  int         `json:"week_absences"`
	Groups        []GroupStat `json:"groups_stats"`
}

const notAssigned = "Не назначен"

func orDefault(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func (s *Stats) SystemStats(ctx context.Context, actor scope.Subject) (*SystemStats, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	all := db.Visibility{All: true}
	t, err := db.CountTotals(ctx, s.db, all)
	if err != nil {
		return nil, fmt.Errorf("count totals: %w", err)
	}
	uc, err := db.CountUsers(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	today, err := db.CountAbsencesInWindow(ctx, s.db, all, s.days(0))
	if err != nil {
		return nil, fmt.Errorf("count today absences: %w", err)
	}
	week, err := db.CountAbsencesInWindow(ctx, s.db, all, s.days(-7))
	if err != nil {
		return nil, fmt.Errorf("count week absences: %w", err)
	}
	views, err := db.ListGroupViews(ctx, s.db, all)
	if err != nil {
		return nil, fmt.Errorf("group views: %w", err)
	}
	out := &SystemStats{
		TotalStudents: t.Students,
		TotalGroups:   t.Groups,
		TotalUsers:    uc.Admins + uc.Curators + uc.Leaders + uc.Pending + uc.Rejected,
		TotalAbsences: t.Absences,
		AdminCount:    uc.Admins,
		CuratorCount:  uc.Curators,
		LeaderCount:   uc.Leaders,
		PendingUsers:  uc.Pending,
		RejectedUsers: uc.Rejected,
		TodayAbsences: today,
		WeekAbsences:  week,
	}
	for _, v := range views {
		out.Groups = append(out.Groups, GroupStat{
			Name:         v.Name,
			StudentCount: v.StudentsCount,
			AbsenceCount: v.AbsencesCount,
			Curator:      orDefault(v.CuratorName, notAssigned),
			Leader:       orDefault(v.LeaderName, notAssigned),
		})
	}
	return out, nil
}

type StaffStat struct {
	UserID        int64       `json:"user_id"`
	FullName      string      `json:"curator"`
	Role          models.Role `json:"role"`
	Phone         string      `json:"phone"`
	Telegram      *string     `json:"telegram"`
	GroupsCount   int         `json:"groups_count"`
	StudentsCount int         `json:"students_count"`
	models.AbsenceTally
}

// groupTallies — итоги пропусков по группам и число студентов в каждой группе.
func (s *Stats) groupTallies(ctx context.Context) (map[int64]models.AbsenceTally, []models.GroupView, error) {
	all := db.Visibility{All: true}
	counts, err := db.CountAbsencesByGroupReason(ctx, s.db, all, db.Window{})
	if err != nil {
		return nil, nil, fmt.Errorf("count by group: %w", err)
	}
	tallies := make(map[int64]models.AbsenceTally)
	for _, c := range counts {
		t := tallies[c.GroupID]
		t.Merge(tallyOf(c.Reason, c.Count))
		tallies[c.GroupID] = t
	}
	views, err := db.ListGroupViews(ctx, s.db, all)
	if err != nil {
		return nil, nil, fmt.Errorf("group views: %w", err)
	}
	return tallies, views, nil
}

func tallyOf(reason *string, n int) models.AbsenceTally {
	if models.IsExcused(reason) {
		return models.AbsenceTally{Total: n, Excused: n}
	}
	return models.AbsenceTally{Total: n, Unexcused: n}
}

// CuratorStats — по каждому подтверждённому куратору и старосте: группы, студенты, пропуски.
func (s *Stats) CuratorStats(ctx context.Context, actor scope.Subject) ([]StaffStat, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	tallies, views, err := s.groupTallies(ctx)
	if err != nil {
		return nil, err
	}
	var out []StaffStat
	for _, role := range []models.Role{models.Curator, models.Leader} {
		users, err := db.ListUsersByRole(ctx, s.db, role, true)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", role, err)
		}
		for _, u := range users {
			st := StaffStat{UserID: u.ID, FullName: u.FullName, Role: u.Role, Phone: u.Phone, Telegram: u.Telegram}
			for _, v := range views {
				owner := v.CuratorID
				if role == models.Leader {
					owner = v.LeaderID
				}
				if owner == nil || *owner != u.ID {
					continue
				}
				st.GroupsCount++
				st.StudentsCount += v.StudentsCount
				st.Merge(tallies[v.ID])
			}
			out = append(out, st)
		}
	}
	return out, nil
}

type CMKStat struct {
	CMK           models.CMK `json:"cmk"`
	CuratorCount  int        `json:"curator_count"`
	GroupsCount   int        `json:"groups_count"`
	StudentsCount int        `json:"students_count"`
	AbsencesCount int        `json:"absences_count"`
}

// CMKStats — по каждой ЦМК: подтверждённые кураторы, их группы, студенты и пропуски.
func (s *Stats) CMKStats(ctx context.Context, actor scope.Subject) ([]CMKStat, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	cmks, err := db.ListCMKs(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("list cmks: %w", err)
	}
	curators, err := db.ListUsersByRole(ctx, s.db, models.Curator, true)
	if err != nil {
		return nil, fmt.Errorf("list curators: %w", err)
	}
	_, views, err := s.groupTallies(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CMKStat, 0, len(cmks))
	for _, c := range cmks {
		st := CMKStat{CMK: c}
		members := map[int64]struct{}{}
		for _, u := range curators {
			if u.CMKID != nil && *u.CMKID == c.ID {
				members[u.ID] = struct{}{}
			}
		}
		st.CuratorCount = len(members)
		for _, v := range views {
			if v.CuratorID == nil {
				continue
			}
			if _, ok := members[*v.CuratorID]; !ok {
				continue
			}
			st.GroupsCount++
			st.StudentsCount += v.StudentsCount
			st.AbsencesCount += v.AbsencesCount
		}
		out = append(out, st)
	}
	return out, nil
}

type StudentAnalyticsFilter struct {
	StudentName string
	GroupName   string
	CuratorID   *int64
	LeaderID    *int64
}

type StudentStat struct {
	StudentID   int64  `json:"student_id"`
	StudentName string `json:"student_name"`
	GroupName   string `json:"group_name"`
	CuratorName string `json:"curator_name"`
	LeaderName  string `json:"leader_name"`
	models.AbsenceTally
}

// StudentAnalytics — итоги пропусков по каждому видимому студенту за всё время.
func (s *Stats) StudentAnalytics(ctx context.Context, actor scope.Subject, f StudentAnalyticsFilter) ([]StudentStat, error) {
	sc, err := s.resolve(ctx, s.db, actor)
	if err != nil {
		return nil, err
	}
	students, err := db.ListStudents(ctx, s.db, sc.Visibility(), db.StudentFilter{Name: f.StudentName})
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	if f.CuratorID != nil || f.LeaderID != nil {
		groups, err := db.ListGroups(ctx, s.db)
		if err != nil {
			return nil, fmt.Errorf("list groups: %w", err)
		}
		allowed := report.Filter{CuratorID: f.CuratorID, LeaderID: f.LeaderID}.Visibility(groups)
		students = keepGroups(students, allowed.GroupIDs)
	}
	if g := strings.ToLower(trim(f.GroupName)); g != "" {
		kept := students[:0]
		for _, st := range students {
			if st.GroupName != nil && strings.Contains(strings.ToLower(*st.GroupName), g) {
				kept = append(kept, st)
			}
		}
		students = kept
	}

	ids := make([]int64, len(students))
	for i, st := range students {
		ids[i] = st.ID
	}
	counts, err := db.CountAbsencesByReason(ctx, s.db, ids, db.Window{})
	if err != nil {
		return nil, fmt.Errorf("count absences: %w", err)
	}
	byStudent := make(map[int64]models.AbsenceTally)
	for _, c := range counts {
		t := byStudent[c.StudentID]
		t.Merge(tallyOf(c.Reason, c.Count))
		byStudent[c.StudentID] = t
	}
	out := make([]StudentStat, 0, len(students))
	for _, st := range students {
		out = append(out, StudentStat{
			StudentID:    st.ID,
			StudentName:  st.FullName,
			GroupName:    orDefault(st.GroupName, "-"),
			CuratorName:  orDefault(st.CuratorName, "-"),
			LeaderName:   orDefault(st.LeaderName, "-"),
			AbsenceTally: byStudent[st.ID],
		})
	}
	return out, nil
}

func keepGroups(students []models.StudentView, groupIDs []int64) []models.StudentView {
	set := make(map[int64]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		set[id] = struct{}{}
	}
	kept := students[:0]
	for _, st := range students {
		if st.GroupID == nil {
			continue
		}
		if _, ok := set[*st.GroupID]; ok {
			kept = append(kept, st)
		}
	}
	return kept
}

type GroupStudentStat struct {
	Student string `json:"student"`
	models.AbsenceTally
}

type GroupAnalytics struct {
	Group      models.Group        `json:"group"`
	StartDate  string              `json:"start_date"`
	EndDate    string              `json:"end_date"`
	Totals     models.AbsenceTally `json:"totals"`
	Students   []GroupStudentStat  `json:"students"`
	DailyStats map[string]int      `json:"daily_stats"`
}

// GroupAnalytics — пропуски группы за период (по умолчанию последние 30 дней);
// в списке только студенты с пропусками.
func (s *Stats) GroupAnalytics(ctx context.Context, actor scope.Subject, groupID int64, start, end *time.Time) (*GroupAnalytics, error) {
	sc, err := s.resolve(ctx, s.db, actor)
	if err != nil {
		return nil, err
	}
	if !sc.ContainsGroup(groupID) {
		return nil, apperr.Forbidden()
	}
	g, err := db.GetGroupByID(ctx, s.db, groupID)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if g == nil {
		return nil, apperr.NotFound("Группа не найдена")
	}
	from, to := s.day(-30), s.day(0)
	if start != nil {
		from = *start
	}
	if end != nil {
		to = *end
	}
	if to.Before(from) {
		return nil, apperr.Validation("Дата окончания раньше даты начала")
	}
	absences, err := db.ListAbsences(ctx, s.db, sc.Visibility(), db.AbsenceFilter{
		GroupID: &groupID,
		Window:  db.Window{From: &from, To: &to},
	})
	if err != nil {
		return nil, fmt.Errorf("list absences: %w", err)
	}

	out := &GroupAnalytics{
		Group:      *g,
		StartDate:  from.Format(report.DateLayout),
		EndDate:    to.Format(report.DateLayout),
		DailyStats: map[string]int{},
	}
	byStudent := map[int64]*GroupStudentStat{}
	var order []int64
	for _, a := range absences {
		out.Totals.Add(a.Reason)
		out.DailyStats[a.Date.Format(report.DateLayout)]++
		st, ok := byStudent[a.StudentID]
		if !ok {
			st = &GroupStudentStat{Student: a.StudentName}
			byStudent[a.StudentID] = st
			order = append(order, a.StudentID)
		}
		st.Add(a.Reason)
	}
	for _, id := range order {
		out.Students = append(out.Students, *byStudent[id])
	}
	sort.SliceStable(out.Students, func(i, j int) bool { return out.Students[i].Student < out.Students[j].Student })
	return out, nil
}
