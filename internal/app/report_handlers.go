package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/report"
	"github.com/Spok95/attendance-web/internal/scope"
	"github.com/Spok95/attendance-web/internal/service"
)

func (h *Handlers) reportRoutes(g *gin.RouterGroup) {
	g.GET("/export-students/process", h.exportStudents)
	g.POST("/export-students/process", h.exportStudents)
	g.GET("/export-students/options", h.exportOptions)
	g.GET("/api/export-preview", h.exportPreview)
	g.GET("/export_students", h.legacyCSV)
	g.GET("/export-users", h.exportUsers)
}

// param — значение из формы или query.
func param(c *gin.Context, name string) string {
	if v, ok := c.GetPostForm(name); ok {
		return v
	}
	return c.Query(name)
}

// exportFilter собирает фильтр выгрузки из параметров запроса.
func (h *Handlers) exportFilter(c *gin.Context) (report.Filter, error) {
	var (
		f   report.Filter
		err error
	)
	if f.GroupID, err = optInt64(param(c, "group_id")); err != nil {
		return f, err
	}
	if f.CuratorID, err = optInt64(param(c, "curator_id")); err != nil {
		return f, err
	}
	if f.LeaderID, err = optInt64(param(c, "leader_id")); err != nil {
		return f, err
	}
	f.Period = report.ParsePeriod(param(c, "period"))
	if f.StartDate, err = h.dateParam(param(c, "start_date")); err != nil {
		return f, err
	}
	if f.EndDate, err = h.dateParam(param(c, "end_date")); err != nil {
		return f, err
	}
	f.IncludeStats = flag(param(c, "include_stats"))
	f.IncludeReasonBreakdown = flag(param(c, "include_reason_breakdown"))
	f.ExcludeStatus = flag(param(c, "exclude_status"))
	return f, nil
}

func (h *Handlers) exportStudents(c *gin.Context) {
	const page = "/dashboard/export-students"
	f, err := h.exportFilter(c)
	if err == nil {
		f.Format, err = report.ParseFormat(param(c, "format"))
	}
	if err != nil {
		fail(c, page, err)
		return
	}
	file, err := h.svc.Reports.Export(c.Request.Context(), subjectOf(c), f)
	if err != nil {
		fail(c, page, err)
		return
	}
	sendFile(c, file)
}

func (h *Handlers) exportOptions(c *gin.Context) {
	opts, err := h.svc.Reports.Options(c.Request.Context(), subjectOf(c))
	if err != nil {
		fail(c, "", err)
		return
	}
	ok(c, "", opts)
}

// exportPreview всегда отвечает JSON: 403 для не-админа, 200 с success=false при сбое.
// Формат превью не нужен и не проверяется.
func (h *Handlers) exportPreview(c *gin.Context) {
	if !scope.IsAdmin(subjectOf(c)) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": apperr.Forbidden().Message})
		return
	}
	f, err := h.exportFilter(c)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": apperr.As(err).Message})
		return
	}
	p, err := h.svc.Reports.Preview(c.Request.Context(), subjectOf(c), f)
	if err != nil {
		e := apperr.As(err)
		if e.Kind == apperr.KindAuthorization {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "error": e.Message})
			return
		}
		logError(c, e)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": e.Message})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) legacyCSV(c *gin.Context) {
	h.download(c, h.svc.Reports.LegacyCSV)
}

func (h *Handlers) exportUsers(c *gin.Context) {
	h.download(c, h.svc.Reports.ExportUsers)
}

func (h *Handlers) download(c *gin.Context, build func(context.Context, scope.Subject) (*service.File, error)) {
	file, err := build(c.Request.Context(), subjectOf(c))
	if err != nil {
		fail(c, "/dashboard/", err)
		return
	}
	sendFile(c, file)
}

// ---- статистика ----

func (h *Handlers) statsRoutes(g *gin.RouterGroup) {
	g.GET("/curator_stats", h.curatorStats)
	g.GET("/cmk_stats", h.cmkStats)
	g.GET("/system-stats", h.systemStats)
	g.GET("/student_analytics", h.studentAnalytics)
	g.GET("/api/student-analytics", h.studentAnalytics)
	g.GET("/group_analytics", h.groupAnalytics)
	g.POST("/group_analytics", h.groupAnalytics)
}

func (h *Handlers) curatorStats(c *gin.Context) {
	out, err := h.svc.Stats.CuratorStats(c.Request.Context(), subjectOf(c))
	if err != nil {
		fail(c, "/dashboard/", err)
		return
	}
	ok(c, "", out)
}

func (h *Handlers) cmkStats(c *gin.Context) {
	out, err := h.svc.Stats.CMKStats(c.Request.Context(), subjectOf(c))
	if err != nil {
		fail(c, "/dashboard/", err)
		return
	}
	ok(c, "", out)
}

func (h *Handlers) systemStats(c *gin.Context) {
	out, err := h.svc.Stats.SystemStats(c.Request.Context(), subjectOf(c))
	if err != nil {
		fail(c, "/dashboard/", err)
		return
	}
	ok(c, "", out)
}

func (h *Handlers) studentAnalytics(c *gin.Context) {
	var (
		f   service.StudentAnalyticsFilter
		err error
	)
	f.StudentName = c.Query("student_name")
	f.GroupName = c.Query("group_name")
	if f.CuratorID, err = optInt64(c.Query("curator_id")); err != nil {
		fail(c, "", err)
		return
	}
	if f.LeaderID, err = optInt64(c.Query("leader_id")); err != nil {
		fail(c, "", err)
		return
	}
	out, err := h.svc.Stats.StudentAnalytics(c.Request.Context(), subjectOf(c), f)
	if err != nil {
		fail(c, "/dashboard/", err)
		return
	}
	ok(c, "", out)
}

func (h *Handlers) groupAnalytics(c *gin.Context) {
	const page = "/dashboard/group_analytics"
	groupID, err := optInt64(param(c, "group_id"))
	if err != nil {
		fail(c, page, err)
		return
	}
	if groupID == nil {
		fail(c, page, apperr.Validation("Выберите группу").WithField("group_id", "required"))
		return
	}
	var start, end *time.Time
	if start, err = h.dateParam(param(c, "start_date")); err != nil {
		fail(c, page, err)
		return
	}
	if end, err = h.dateParam(param(c, "end_date")); err != nil {
		fail(c, page, err)
		return
	}
	out, err := h.svc.Stats.GroupAnalytics(c.Request.Context(), subjectOf(c), *groupID, start, end)
	if err != nil {
		fail(c, page, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": out})
}
