package models

import (
	"strings"
	"time"
)

type Absence struct {
	ID           int64     `db:"id" json:"id"`
	StudentID    int64     `db:"student_id" json:"student_id"`
	Date         time.Time `db:"date" json:"date"`
	Reason       *string   `db:"reason" json:"reason"`
	LessonsCount int       `db:"lessons_count" json:"lessons_count"`
}

type AbsenceView struct {
	Absence
	StudentName string  `json:"student_name"`
	GroupID     *int64  `json:"group_id"`
	GroupName   *string `json:"group_name"`
}

// уважительные причины (сравнение по нижнему регистру)
var excusedReasons = map[string]struct{}{
	"болезнь":             {},
	"справка":             {},
	"уважительная":        {},
	"по болезни":          {},
	"мед. справка":        {},
	"illness":             {},
	"medical certificate": {},
	"justified":           {},
}

// IsExcused сообщает, считается ли причина уважительной.
func IsExcused(reason *string) bool {
	if reason == nil {
		return false
	}
	_, ok := excusedReasons[strings.ToLower(strings.TrimSpace(*reason))]
	return ok
}

func (a Absence) Excused() bool { return IsExcused(a.Reason) }

// AbsenceTally — итоги по пропускам.
type AbsenceTally struct {
	Total     int `json:"total"`
	Excused   int `json:"excused"`
	Unexcused int `json:"unexcused"`
}

func (t *AbsenceTally) Add(reason *string) {
	t.Total++
	if IsExcused(reason) {
		t.Excused++
	} else {
		t.Unexcused++
	}
}

func (t *AbsenceTally) Merge(o AbsenceTally) {
	t.Total += o.Total
	t.Excused += o.Excused
	t.Unexcused += o.Unexcused
}
