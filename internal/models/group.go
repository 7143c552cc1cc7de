package models

type Group struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	CuratorID *int64 `db:"curator_id" json:"curator_id"`
	LeaderID  *int64 `db:"leader_id" json:"leader_id"`
}

// GroupView — группа с именами куратора/старосты и счётчиками.
type GroupView struct {
	Group
	CuratorName   *string `json:"curator_name"`
	LeaderName    *string `json:"leader_name"`
	StudentsCount int     `json:"students_count"`
	AbsencesCount int     `json:"absences_count"`
}

type Student struct {
	ID       int64   `db:"id" json:"id"`
	FullName string  `db:"full_name" json:"full_name"`
	GroupID  *int64  `db:"group_id" json:"group_id"`
	Phone    *string `db:"phone" json:"phone"`
}

// StudentView — студент вместе с группой, куратором и старостой.
type StudentView struct {
	Student
	GroupName   *string `json:"group_name"`
	CuratorName *string `json:"curator_name"`
	LeaderName  *string `json:"leader_name"`
}

type CMK struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
