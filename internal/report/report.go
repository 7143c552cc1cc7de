// Package report собирает таблицу выгрузки студентов: фильтр, окно дат и колонки.
package report

import (
	"sort"
	"strings"
	"time"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/models"
)

type Period string

const (
	PeriodWeek     Period = "week"
	PeriodMonth    Period = "month"
	PeriodSemester Period = "semester"
	PeriodYear     Period = "year"
	PeriodCustom   Period = "custom"
	PeriodAll      Period = "all"
)

// ParsePeriod — неизвестный период считается неделей.
func ParsePeriod(s string) Period {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodWeek, PeriodMonth, PeriodSemester, PeriodYear, PeriodCustom, PeriodAll:
		return p
	}
	return PeriodWeek
}

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

// ParseFormat принимает xlsx/excel, csv, pdf.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xlsx", "excel":
		return FormatXLSX, nil
	case "csv":
		return FormatCSV, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", apperr.Validation("Неверный формат экспорта: %s", s)
}

const DateLayout = "2006-01-02"

// Filter — параметры выгрузки.
type Filter struct {
	GroupID                *int64
	CuratorID              *int64
	LeaderID               *int64
	Period                 Period
	StartDate              *time.Time
	EndDate                *time.Time
	IncludeStats           bool
	IncludeReasonBreakdown bool
	ExcludeStatus          bool
	Format                 Format
}

var periodDays = map[Period]int{
	PeriodWeek:     7,
	PeriodMonth:    30,
	PeriodSemester: 180,
	PeriodYear:     365,
}

// Window — окно дат пропусков. Для custom без одной из границ — неделя.
func (f Filter) Window(now time.Time) db.Window {
	switch f.Period {
	case PeriodAll:
		return db.Window{}
	case PeriodCustom:
		if f.StartDate != nil && f.EndDate != nil {
			from, to := *f.StartDate, *f.EndDate
			return db.Window{From: &from, To: &to}
		}
	}
	days, ok := periodDays[f.Period]
	if !ok {
		days = periodDays[PeriodWeek]
	}
	from := now.AddDate(0, 0, -days)
	to := now
	return db.Window{From: &from, To: &to}
}

// Visibility сужает множество студентов: группа, затем группы куратора, затем
// группа старосты. Условия пересекаются; пустое пересечение — пустой результат.
func (f Filter) Visibility(groups []models.Group) db.Visibility {
	var set map[int64]struct{}
	narrow := func(ids map[int64]struct{}) {
		if set == nil {
			set = ids
			return
		}
		for id := range set {
			if _, ok := ids[id]; !ok {
				delete(set, id)
			}
		}
	}
	if f.GroupID != nil {
		narrow(map[int64]struct{}{*f.GroupID: {}})
	}
	if f.CuratorID != nil {
		ids := make(map[int64]struct{})
		for _, g := range groups {
			if g.CuratorID != nil && *g.CuratorID == *f.CuratorID {
				ids[g.ID] = struct{}{}
			}
		}
		narrow(ids)
	}
	if f.LeaderID != nil {
		ids := make(map[int64]struct{})
		for _, g := range groups {
			if g.LeaderID != nil && *g.LeaderID == *f.LeaderID {
				ids[g.ID] = struct{}{}
			}
		}
		narrow(ids)
	}
	if set == nil {
		return db.Visibility{All: true}
	}
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return db.Visibility{GroupIDs: out}
}

const (
	ColID        = "ID"
	ColName      = "ФИО"
	ColGroup     = "Группа"
	ColPhone     = "Телефон"
	ColStatus    = "Статус"
	ColCurator   = "Куратор"
	ColLeader    = "Староста"
	ColTotal     = "Всего пропусков"
	ColNoReason  = "Пропуски без причины"
	statusActive = "Активен"
)

func ReasonColumn(reason string) string { return "Пропуски (" + reason + ")" }

// Table — прямоугольная таблица для записи в документ.
type Table struct {
	Headers []string
	Rows    [][]any
}

// Record — строка выгрузки до раскладки по колонкам.
type Record struct {
	Student  models.StudentView
	Total    int
	ByReason map[string]int
	NoReason int
}

// Records объединяет студентов со счётчиками пропусков по причинам.
func Records(students []models.StudentView, counts []db.ReasonCount) []Record {
	idx := make(map[int64]int, len(students))
	out := make([]Record, len(students))
	for i, s := range students {
		idx[s.ID] = i
		out[i] = Record{Student: s, ByReason: map[string]int{}}
	}
	for _, c := range counts {
		i, ok := idx[c.StudentID]
		if !ok {
			continue
		}
		r := &out[i]
		r.Total += c.Count
		if c.Reason == nil {
			r.NoReason += c.Count
		} else {
			r.ByReason[*c.Reason] += c.Count
		}
	}
	return out
}

// Build раскладывает записи по колонкам согласно фильтру.
func Build(f Filter, records []Record) Table {
	headers := []string{ColID, ColName, ColGroup, ColPhone}
	if !f.ExcludeStatus {
		headers = append(headers, ColStatus)
	}
	headers = append(headers, ColCurator, ColLeader)

	var reasons []string
	hasNoReason := false
	breakdown := f.IncludeStats && f.IncludeReasonBreakdown
	if f.IncludeStats {
		headers = append(headers, ColTotal)
	}
	if breakdown {
		seen := map[string]struct{}{}
		for _, r := range records {
			for reason := range r.ByReason {
				if _, ok := seen[reason]; !ok {
					seen[reason] = struct{}{}
					reasons = append(reasons, reason)
				}
			}
			if r.NoReason > 0 {
				hasNoReason = true
			}
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			headers = append(headers, ReasonColumn(reason))
		}
		if hasNoReason {
			headers = append(headers, ColNoReason)
		}
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		s := r.Student
		row := []any{s.ID, s.FullName, deref(s.GroupName), deref(s.Phone)}
		if !f.ExcludeStatus {
			row = append(row, statusActive)
		}
		row = append(row, deref(s.CuratorName), deref(s.LeaderName))
		if f.IncludeStats {
			row = append(row, r.Total)
		}
		if breakdown {
			for _, reason := range reasons {
				row = append(row, r.ByReason[reason])
			}
			if hasNoReason {
				row = append(row, r.NoReason)
			}
		}
		rows = append(rows, row)
	}
	return Table{Headers: headers, Rows: rows}
}

// Compact — сокращённая таблица для PDF: ФИО, группа, телефон и итог, если запрошен.
func Compact(f Filter, records []Record) Table {
	headers := []string{ColName, ColGroup, ColPhone}
	if f.IncludeStats {
		headers = append(headers, ColTotal)
	}
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		row := []any{r.Student.FullName, deref(r.Student.GroupName), deref(r.Student.Phone)}
		if f.IncludeStats {
			row = append(row, r.Total)
		}
		rows = append(rows, row)
	}
	return Table{Headers: headers, Rows: rows}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
