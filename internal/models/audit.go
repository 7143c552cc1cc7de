package models

import "time"

// Теги действий журнала аудита.
const (
	ActionConfirmUser    = "confirm_user"
	ActionRejectUser     = "reject_user"
	ActionDeleteUser     = "delete_user"
	ActionRegisterAdmin  = "register_admin"
	ActionUpdateSettings = "update_settings"
	ActionAddGroup       = "add_group"
	ActionEditGroup      = "edit_group"
	ActionDeleteGroup    = "delete_group"
	ActionAddStudent     = "add_student"
	ActionEditStudent    = "edit_student"
	ActionDeleteStudent  = "delete_student"
	ActionUploadStudents = "upload_students"
	ActionImportStudents = "import_students"
	ActionImportUsers    = "import_users"
	ActionAddAbsence     = "add_absence"
	ActionEditAbsence    = "edit_absence"
	ActionDeleteAbsence  = "delete_absence"
	ActionExportStudents = "export_students"
	ActionExportExtended = "export_students_extended"
	ActionExportUsers    = "export_users"
	ActionAddCMK         = "add_cmk"
)

type AuditEntry struct {
	ID          int64     `db:"id" json:"id"`
	UserID      *int64    `db:"user_id" json:"user_id"`
	Action      string    `db:"action" json:"action"`
	Description string    `db:"description" json:"description"`
	IPAddress   *string   `db:"ip_address" json:"ip_address"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
