package app

import (
	"io"
	"mime/multipart"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/report"
	"github.com/Spok95/attendance-web/internal/service"
)

// предел размера загружаемого файла импорта
const maxUploadSize = 10 << 20

func (h *Handlers) directoryRoutes(g *gin.RouterGroup) {
	g.GET("/groups", h.listGroups)
	g.POST("/groups/add", h.createGroup)
	g.POST("/groups/edit/:id", h.updateGroup)
	g.POST("/groups/delete/:id", h.deleteGroup)

	g.GET("/students", h.listStudents)
	g.POST("/students/add", h.createStudent)
	g.POST("/students/edit/:id", h.updateStudent)
	g.POST("/students/delete/:id", h.deleteStudent)
	g.POST("/upload_students", h.uploadStudents)
	g.POST("/import_students", h.importStudents)
	g.POST("/import-users", h.importUsers)

	g.GET("/absences", h.listAbsences)
	g.POST("/absences/add", h.createAbsence)
	g.POST("/absences/edit/:id", h.updateAbsence)
	g.POST("/absences/delete/:id", h.deleteAbsence)

	g.GET("/cmks", h.listCMKs)
	g.POST("/cmks", h.createCMK)
}

// ---- группы ----

type groupReq struct {
	Name      string `form:"name" json:"name" binding:"required"`
	CuratorID *int64 `form:"curator_id" json:"curator_id"`
}

func (r groupReq) input() service.GroupInput {
	in := service.GroupInput{Name: r.Name, CuratorID: r.CuratorID}
	if in.CuratorID != nil && *in.CuratorID <= 0 {
		in.CuratorID = nil
	}
	return in
}

func (h *Handlers) listGroups(c *gin.Context) {
	groups, err := h.svc.Groups.List(c.Request.Context(), subjectOf(c))
	if err != nil {
		fail(c, "/dashboard/", err)
		return
	}
	ok(c, "", groups)
}

func (h *Handlers) createGroup(c *gin.Context) {
	const page = "/dashboard/groups"
	var req groupReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, page, bindError(err))
		return
	}
	g, err := h.svc.Groups.Create(c.Request.Context(), subjectOf(c), req.input())
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, g)
}

func (h *Handlers) updateGroup(c *gin.Context) {
	const page = "/dashboard/groups"
	id, err := paramID(c)
	if err != nil {
		fail(c, page, err)
		return
	}
	var req groupReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, page, bindError(err))
		return
	}
	g, err := h.svc.Groups.Update(c.Request.Context(), subjectOf(c), id, req.input())
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, g)
}

func (h *Handlers) deleteGroup(c *gin.Context) {
	const page = "/dashboard/groups"
	id, err := paramID(c)
	if err != nil {
		fail(c, page, err)
		return
	}
	if err := h.svc.Groups.Delete(c.Request.Context(), subjectOf(c), id); err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, gin.H{"id": id})
}

// ---- студенты ----

type studentReq struct {
	FullName string `form:"full_name" json:"full_name" binding:"required"`
	GroupID  *int64 `form:"group_id" json:"group_id"`
	Phone    string `form:"phone" json:"phone"`
}

func (r studentReq) input() service.StudentInput {
	in := service.StudentInput{FullName: r.FullName, GroupID: r.GroupID, Phone: optText(r.Phone)}
	if in.GroupID != nil && *in.GroupID <= 0 {
		in.GroupID = nil
	}
	return in
}

func (h *Handlers) listStudents(c *gin.Context) {
	groupID, err := optInt64(c.Query("group_id"))
	if err != nil {
		fail(c, "", err)
		return
	}
	students, err := h.svc.Students.List(c.Request.Context(), subjectOf(c), db.StudentFilter{
		GroupID: groupID,
		Name:    c.Query("name"),
	})
	if err != nil {
		fail(c, "/dashboard/", err)
		return
	}
	ok(c, "", students)
}

func (h *Handlers) createStudent(c *gin.Context) {
	const page = "/dashboard/students"
	var req studentReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, page, bindError(err))
		return
	}
	st, err := h.svc.Students.Create(c.Request.Context(), subjectOf(c), req.input())
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, st)
}

func (h *Handlers) updateStudent(c *gin.Context) {
	const page = "/dashboard/students"
	id, err := paramID(c)
	if err != nil {
		fail(c, page, err)
		return
	}
	var req studentReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, page, bindError(err))
		return
	}
	st, err := h.svc.Students.Update(c.Request.Context(), subjectOf(c), id, req.input())
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, st)
}

func (h *Handlers) deleteStudent(c *gin.Context) {
	const page = "/dashboard/students"
	id, err := paramID(c)
	if err != nil {
		fail(c, page, err)
		return
	}
	if err := h.svc.Students.Delete(c.Request.Context(), subjectOf(c), id); err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, gin.H{"id": id})
}

// ---- загрузка файлов ----

func readUpload(c *gin.Context) (service.Upload, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return service.Upload{}, apperr.Validation("Выберите файл").WithField("file", "required")
	}
	if fh.Size > maxUploadSize {
		return service.Upload{}, apperr.Validation("Файл слишком большой").WithField("file", "size")
	}
	data, err := readAll(fh)
	if err != nil {
		return service.Upload{}, err
	}
	return service.Upload{Filename: fh.Filename, Data: data}, nil
}

func readAll(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "Не удалось прочитать файл", err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "Не удалось прочитать файл", err)
	}
	return data, nil
}

func (h *Handlers) uploadStudents(c *gin.Context) {
	const page = "/dashboard/students"
	groupID, err := optInt64(c.PostForm("group_id"))
	if err != nil {
		fail(c, page, err)
		return
	}
	if groupID == nil {
		fail(c, page, apperr.Validation("Выберите группу").WithField("group_id", "required"))
		return
	}
	up, err := readUpload(c)
	if err != nil {
		fail(c, page, err)
		return
	}
	res, err := h.svc.Imports.UploadStudents(c.Request.Context(), subjectOf(c), *groupID, up)
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, res)
}

func (h *Handlers) importStudents(c *gin.Context) {
	const page = "/dashboard/students"
	up, err := readUpload(c)
	if err != nil {
		fail(c, page, err)
		return
	}
	res, err := h.svc.Imports.ImportStudents(c.Request.Context(), subjectOf(c), up)
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, res)
}

func (h *Handlers) importUsers(c *gin.Context) {
	const page = "/dashboard/admin"
	up, err := readUpload(c)
	if err != nil {
		fail(c, page, err)
		return
	}
	res, err := h.svc.Imports.ImportUsers(c.Request.Context(), subjectOf(c), up)
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, res)
}

// ---- пропуски ----

type absenceReq struct {
	StudentID    int64  `form:"student_id" json:"student_id" binding:"required"`
	Date         string `form:"date" json:"date" binding:"required"`
	Reason       string `form:"reason" json:"reason"`
	LessonsCount int    `form:"lessons_count" json:"lessons_count"`
}

func (r absenceReq) input() service.AbsenceInput {
	return service.AbsenceInput{
		StudentID:    r.StudentID,
		Date:         r.Date,
		Reason:       optText(r.Reason),
		LessonsCount: r.LessonsCount,
	}
}

// dateParam — необязательная дата YYYY-MM-DD в часовом поясе приложения.
func (h *Handlers) dateParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(report.DateLayout, s, h.loc)
	if err != nil {
		return nil, apperr.Validation("Неверный формат даты: %s", s)
	}
	return &t, nil
}

func (h *Handlers) listAbsences(c *gin.Context) {
	var (
		f   db.AbsenceFilter
		err error
	)
	if f.StudentID, err = optInt64(c.Query("student_id")); err != nil {
		fail(c, "", err)
		return
	}
	if f.GroupID, err = optInt64(c.Query("group_id")); err != nil {
		fail(c, "", err)
		return
	}
	if f.Window.From, err = h.dateParam(c.Query("start_date")); err != nil {
		fail(c, "", err)
		return
	}
	if f.Window.To, err = h.dateParam(c.Query("end_date")); err != nil {
		fail(c, "", err)
		return
	}
	absences, err := h.svc.Absences.List(c.Request.Context(), subjectOf(c), f)
	if err != nil {
		fail(c, "/dashboard/", err)
		return
	}
	ok(c, "", absences)
}

func (h *Handlers) createAbsence(c *gin.Context) {
	const page = "/dashboard/absences"
	var req absenceReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, page, bindError(err))
		return
	}
	a, err := h.svc.Absences.Create(c.Request.Context(), subjectOf(c), req.input())
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, a)
}

func (h *Handlers) updateAbsence(c *gin.Context) {
	const page = "/dashboard/absences"
	id, err := paramID(c)
	if err != nil {
		fail(c, page, err)
		return
	}
	var req absenceReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, page, bindError(err))
		return
	}
	a, err := h.svc.Absences.Update(c.Request.Context(), subjectOf(c), id, req.input())
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, a)
}

func (h *Handlers) deleteAbsence(c *gin.Context) {
	const page = "/dashboard/absences"
	id, err := paramID(c)
	if err != nil {
		fail(c, page, err)
		return
	}
	if err := h.svc.Absences.Delete(c.Request.Context(), subjectOf(c), id); err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, gin.H{"id": id})
}

// ---- ЦМК ----

func (h *Handlers) listCMKs(c *gin.Context) {
	cmks, err := h.svc.CMKs.List(c.Request.Context())
	if err != nil {
		fail(c, "", err)
		return
	}
	ok(c, "", cmks)
}

type cmkReq struct {
	Name string `form:"name" json:"name" binding:"required"`
}

func (h *Handlers) createCMK(c *gin.Context) {
	const page = "/dashboard/cmks"
	var req cmkReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, page, bindError(err))
		return
	}
	cmk, err := h.svc.CMKs.Create(c.Request.Context(), subjectOf(c), req.Name)
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, cmk)
}
