package service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/export"
	"github.com/Spok95/attendance-web/internal/metrics"
	"github.com/Spok95/attendance-web/internal/models"
	"github.com/Spok95/attendance-web/internal/report"
	"github.com/Spok95/attendance-web/internal/scope"
)

// Reports — выгрузки студентов и пользователей.
type Reports struct{ *core }

// File — готовый документ для отдачи клиенту.
type File struct {
	Name        string
	ContentType string
	Data        []byte
	Rows        int
}

const previewLimit = 10

// dataset — студенты под фильтром и записи с пропусками в окне.
func (s *Reports) dataset(ctx context.Context, f report.Filter) ([]models.StudentView, db.Window, error) {
	groups, err := db.ListGroups(ctx, s.db)
	if err != nil {
		return nil, db.Window{}, fmt.Errorf("list groups: %w", err)
	}
	students, err := db.ListStudents(ctx, s.db, f.Visibility(groups), db.StudentFilter{})
	if err != nil {
		return nil, db.Window{}, fmt.Errorf("list students: %w", err)
	}
	return students, f.Window(s.clock()), nil
}

func (s *Reports) counts(ctx context.Context, students []models.StudentView, w db.Window) ([]db.ReasonCount, error) {
	ids := make([]int64, len(students))
	for i, st := range students {
		ids[i] = st.ID
	}
	out, err := db.CountAbsencesByReason(ctx, s.db, ids, w)
	if err != nil {
		return nil, fmt.Errorf("count absences: %w", err)
	}
	return out, nil
}

// Export строит выгрузку студентов по фильтру в выбранном формате.
func (s *Reports) Export(ctx context.Context, actor scope.Subject, f report.Filter) (*File, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	format, err := report.ParseFormat(string(f.Format))
	if err != nil {
		return nil, err
	}
	students, window, err := s.dataset(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return nil, apperr.NotFound("Нет студентов, соответствующих выбранным фильтрам")
	}
	var counts []db.ReasonCount
	if f.IncludeStats {
		if counts, err = s.counts(ctx, students, window); err != nil {
			return nil, err
		}
	}
	records := report.Records(students, counts)

	now := s.clock()
	var data []byte
	switch format {
	case report.FormatXLSX:
		t := report.Build(f, records)
		data, err = export.XLSX(export.Sheet{Title: "Студенты", Headers: t.Headers, Rows: t.Rows})
	case report.FormatCSV:
		t := report.Build(f, records)
		data, err = export.CSV(export.Sheet{Headers: t.Headers, Rows: t.Rows}, ',')
	case report.FormatPDF:
		t := report.Compact(f, records)
		meta := []string{
			"Дата экспорта: " + now.Format("02.01.2006 15:04"),
			fmt.Sprintf("Всего записей: %d", len(records)),
		}
		if window.From != nil && window.To != nil {
			meta = append(meta, fmt.Sprintf("Период: %s - %s",
				window.From.Format("02.01.2006"), window.To.Format("02.01.2006")))
		}
		data, err = export.PDF(export.Sheet{Headers: t.Headers, Rows: t.Rows},
			export.PDFOptions{Title: "Экспорт студентов", Meta: meta, FontPath: s.pdfFont})
	}
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}

	err = s.tx(ctx, func(tx *sql.Tx) error {
		return s.audit(ctx, tx, actor.UserID(), models.ActionExportExtended,
			fmt.Sprintf("Экспорт студентов: %d записей в формате %s", len(records), format))
	})
	if err != nil {
		return nil, err
	}
	metrics.Exports.WithLabelValues(string(format)).Inc()
	s.logger(ctx).Info("students exported", zap.String("format", string(format)), zap.Int("rows", len(records)))

	ext := string(format)
	return &File{
		Name:        export.Filename("students_export", ext, now),
		ContentType: export.ContentType(ext),
		Data:        data,
		Rows:        len(records),
	}, nil
}

type PreviewStudent struct {
	Name   string `json:"name"`
	Group  string `json:"group"`
	Misses int    `json:"misses"`
	Phone  string `json:"phone"`
}

type PreviewStats struct {
	GroupsCount   int `json:"groups_count"`
	StudentsCount int `json:"students_count"`
	AbsencesCount int `json:"absences_count"`
}

type Preview struct {
	Success     bool             `json:"success"`
	Students    []PreviewStudent `json:"students"`
	Count       int              `json:"count"`
	GroupsCount int              `json:"groups_count"`
	Stats       PreviewStats     `json:"stats"`
	HasData     bool             `json:"has_data"`
	Period      string           `json:"period"`
	StartDate   *string          `json:"start_date"`
	EndDate     *string          `json:"end_date"`
}

// Preview — первые строки выгрузки и сводка по тому же фильтру.
func (s *Reports) Preview(ctx context.Context, actor scope.Subject, f report.Filter) (*Preview, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	students, window, err := s.dataset(ctx, f)
	if err != nil {
		return nil, err
	}
	counts, err := s.counts(ctx, students, window)
	if err != nil {
		return nil, err
	}
	records := report.Records(students, counts)

	p := &Preview{
		Success:  true,
		Students: make([]PreviewStudent, 0, previewLimit),
		Count:    len(records),
		HasData:  len(records) > 0,
		Period:   string(f.Period),
	}
	groups := map[int64]struct{}{}
	for i, r := range records {
		if r.Student.GroupID != nil {
			groups[*r.Student.GroupID] = struct{}{}
		}
		p.Stats.AbsencesCount += r.Total
		if i < previewLimit {
			p.Students = append(p.Students, PreviewStudent{
				Name:   r.Student.FullName,
				Group:  deref(r.Student.GroupName),
				Misses: r.Total,
				Phone:  deref(r.Student.Phone),
			})
		}
	}
	p.GroupsCount = len(groups)
	p.Stats.GroupsCount = len(groups)
	p.Stats.StudentsCount = len(records)
	if window.From != nil {
		v := window.From.Format(report.DateLayout)
		p.StartDate = &v
	}
	end := s.clock()
	if window.To != nil {
		end = *window.To
	}
	v := end.Format(report.DateLayout)
	p.EndDate = &v
	return p, nil
}

// LegacyCSV — простой список студентов через «;».
func (s *Reports) LegacyCSV(ctx context.Context, actor scope.Subject) (*File, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	students, err := db.ListStudents(ctx, s.db, db.Visibility{All: true}, db.StudentFilter{})
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	sheet := export.Sheet{Headers: []string{
		report.ColID, report.ColName, report.ColGroup, report.ColPhone, report.ColCurator, report.ColLeader,
	}}
	for _, st := range students {
		sheet.Rows = append(sheet.Rows, []any{
			st.ID, st.FullName, deref(st.GroupName), deref(st.Phone), deref(st.CuratorName), deref(st.LeaderName),
		})
	}
	data, err := export.CSV(sheet, ';')
	if err != nil {
		return nil, fmt.Errorf("render csv: %w", err)
	}
	err = s.tx(ctx, func(tx *sql.Tx) error {
		return s.audit(ctx, tx, actor.UserID(), models.ActionExportStudents,
			fmt.Sprintf("Экспорт списка студентов (%d записей)", len(students)))
	})
	if err != nil {
		return nil, err
	}
	metrics.Exports.WithLabelValues("legacy_csv").Inc()
	return &File{
		Name:        export.Filename("students_export", "csv", s.clock()),
		ContentType: export.ContentType("csv"),
		Data:        data,
		Rows:        len(students),
	}, nil
}

// ExportUsers — кураторы и старосты с группами и статусом заявки.
func (s *Reports) ExportUsers(ctx context.Context, actor scope.Subject) (*File, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := db.ListStaffForExport(ctx, s.db, true)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	sheet := export.Sheet{
		Title: "Кураторы и старосты",
		Headers: []string{"ID", "ФИО", "Роль", "Телефон", "Telegram", "Email", "Группы", "ЦМК",
			"Статус", "Дата регистрации", "Подтверждён"},
	}
	for _, u := range users {
		confirmed := "Нет"
		if u.IsConfirmed {
			confirmed = "Да"
		}
		sheet.Rows = append(sheet.Rows, []any{
			u.ID, u.FullName, u.Role.Title(), u.Phone, deref(u.Telegram), deref(u.Email), u.Groups, u.CMKName,
			u.State().Title(), u.CreatedAt.In(s.loc).Format("02.01.2006 15:04"), confirmed,
		})
	}
	data, err := export.XLSX(sheet)
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	err = s.tx(ctx, func(tx *sql.Tx) error {
		return s.audit(ctx, tx, actor.UserID(), models.ActionExportUsers,
			fmt.Sprintf("Экспорт кураторов и старост (%d записей)", len(users)))
	})
	if err != nil {
		return nil, err
	}
	metrics.Exports.WithLabelValues("users_xlsx").Inc()
	return &File{
		Name:        export.Filename("users_export", "xlsx", s.clock()),
		ContentType: export.ContentType("xlsx"),
		Data:        data,
		Rows:        len(users),
	}, nil
}

// LeaderOption — староста с названием группы для формы выгрузки.
type LeaderOption struct {
	ID        int64  `json:"id"`
	FullName  string `json:"full_name"`
	GroupName string `json:"group_name"`
}

type ExportOptions struct {
	Groups   []models.Group `json:"groups"`
	Curators []models.User  `json:"curators"`
	Leaders  []LeaderOption `json:"leaders"`
}

// Options — списки для фильтров формы выгрузки.
func (s *Reports) Options(ctx context.Context, actor scope.Subject) (*ExportOptions, error) {
	if err := scope.RequireAdmin(actor); err != nil {
		return nil, err
	}
	groups, err := db.ListGroups(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	curators, err := db.ListUsersByRole(ctx, s.db, models.Curator, true)
	if err != nil {
		return nil, fmt.Errorf("list curators: %w", err)
	}
	leaders, err := db.ListUsersByRole(ctx, s.db, models.Leader, true)
	if err != nil {
		return nil, fmt.Errorf("list leaders: %w", err)
	}
	byLeader := map[int64]string{}
	for _, g := range groups {
		if g.LeaderID != nil {
			byLeader[*g.LeaderID] = g.Name
		}
	}
	opts := &ExportOptions{Groups: groups, Curators: curators}
	for _, l := range leaders {
		name, ok := byLeader[l.ID]
		if !ok {
			name = "Не назначена"
		}
		opts.Leaders = append(opts.Leaders, LeaderOption{ID: l.ID, FullName: l.FullName, GroupName: name})
	}
	return opts, nil
}
