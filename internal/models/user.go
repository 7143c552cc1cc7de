package models

import "time"

type Role string

const (
	Admin   Role = "admin"
	Curator Role = "curator"
	Leader  Role = "leader"
)

func (r Role) Valid() bool {
	switch r {
	case Admin, Curator, Leader:
		return true
	}
	return false
}

// Title — подпись роли для экспорта.
func (r Role) Title() string {
	switch r {
	case Admin:
		return "Администратор"
	case Curator:
		return "Куратор"
	case Leader:
		return "Староста"
	}
	return string(r)
}

// ParseRole принимает и русские названия (как в файлах импорта).
func ParseRole(s string) (Role, bool) {
	switch s {
	case "admin", "администратор":
		return Admin, true
	case "curator", "куратор":
		return Curator, true
	case "leader", "староста":
		return Leader, true
	}
	return "", false
}

type ApprovalState string

const (
	StatePending   ApprovalState = "pending"
	StateConfirmed ApprovalState = "confirmed"
	StateRejected  ApprovalState = "rejected"
)

func (s ApprovalState) Title() string {
	switch s {
	case StateConfirmed:
		return "Подтверждён"
	case StateRejected:
		return "Отклонён"
	}
	return "Ожидает"
}

type User struct {
	ID            int64      `db:"id" json:"id"`
	FullName      string     `db:"full_name" json:"full_name"`
	Phone         string     `db:"phone" json:"phone"`
	Telegram      *string    `db:"telegram" json:"telegram"`
	Email         *string    `db:"email" json:"email"`
	Role          Role       `db:"role" json:"role"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	IsConfirmed   bool       `db:"is_confirmed" json:"is_confirmed"`
	IsRejected    bool       `db:"is_rejected" json:"is_rejected"`
	CMKID         *int64     `db:"cmk_id" json:"cmk_id"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	ConfirmedAt   *time.Time `db:"confirmed_at" json:"confirmed_at"`
	RejectedAt    *time.Time `db:"rejected_at" json:"rejected_at"`
	ConfirmedByID *int64     `db:"confirmed_by_id" json:"confirmed_by_id"`
	RejectedByID  *int64     `db:"rejected_by_id" json:"rejected_by_id"`
}

func (u *User) State() ApprovalState {
	switch {
	case u.IsRejected:
		return StateRejected
	case u.IsConfirmed:
		return StateConfirmed
	}
	return StatePending
}

// Active — можно ли пользоваться учётной записью.
func (u *User) Active() bool {
	if u.IsRejected {
		return false
	}
	return u.Role == Admin || u.IsConfirmed
}

// PendingUser — заявка в списке на подтверждение.
type PendingUser struct {
	User
	GroupName *string `json:"group_name"` // для старосты — его группа
}
