package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/models"
	"github.com/Spok95/attendance-web/internal/service"
)

func (h *Handlers) dashboardRoutes(g *gin.RouterGroup) {
	g.GET("/", h.dashboard)
	g.GET("/admin", h.adminOverview)

	g.GET("/confirm_users", h.pendingUsers)
	g.GET("/confirm_user/:id", h.confirmUser)
	g.POST("/confirm_user/:id", h.confirmUser)
	g.GET("/reject_user/:id", h.rejectUser)
	g.POST("/reject_user/:id", h.rejectUser)
	g.GET("/users", h.listUsers)
	g.POST("/users/delete/:id", h.deleteUser)

	g.GET("/settings", h.settings)
	g.POST("/settings", h.updateSettings)
}

func (h *Handlers) dashboard(c *gin.Context) {
	d, err := h.svc.Stats.Dashboard(c.Request.Context(), subjectOf(c))
	if err != nil {
		fail(c, "", err)
		return
	}
	ok(c, "", gin.H{"user": userOf(c), "stats": d})
}

func (h *Handlers) adminOverview(c *gin.Context) {
	o, err := h.svc.Stats.AdminOverview(c.Request.Context(), subjectOf(c))
	if err != nil {
		fail(c, "/dashboard/", err)
		return
	}
	ok(c, "", o)
}

func (h *Handlers) pendingUsers(c *gin.Context) {
	users, err := h.svc.Identity.ListPending(c.Request.Context(), subjectOf(c))
	if err != nil {
		fail(c, "/dashboard/", err)
		return
	}
	ok(c, "", users)
}

func (h *Handlers) confirmUser(c *gin.Context) { h.decide(c, true) }

func (h *Handlers) rejectUser(c *gin.Context) { h.decide(c, false) }

// decide — GET из ссылки в списке заявок ведёт себя как форма: редирект обратно.
func (h *Handlers) decide(c *gin.Context, confirm bool) {
	const page = "/dashboard/confirm_users"
	id, err := paramID(c)
	if err != nil {
		fail(c, page, err)
		return
	}
	var u *models.User
	if confirm {
		u, err = h.svc.Identity.Confirm(c.Request.Context(), subjectOf(c), id)
	} else {
		u, err = h.svc.Identity.Reject(c.Request.Context(), subjectOf(c), id)
	}
	if err != nil {
		if c.Request.Method == http.MethodGet && acceptsHTML(c) {
			c.Redirect(http.StatusSeeOther, withQuery(page, "error", apperr.As(err).Message))
			return
		}
		fail(c, page, err)
		return
	}
	if c.Request.Method == http.MethodGet && acceptsHTML(c) {
		c.Redirect(http.StatusSeeOther, page)
		return
	}
	ok(c, page, u)
}

func (h *Handlers) listUsers(c *gin.Context) {
	role := models.Role(c.DefaultQuery("role", string(models.Curator)))
	users, err := h.svc.Identity.ListConfirmed(c.Request.Context(), subjectOf(c), role)
	if err != nil {
		fail(c, "/dashboard/", err)
		return
	}
	ok(c, "", users)
}

func (h *Handlers) deleteUser(c *gin.Context) {
	page := back(c, "/dashboard/admin")
	id, err := paramID(c)
	if err != nil {
		fail(c, page, err)
		return
	}
	if err := h.svc.Identity.DeleteUser(c.Request.Context(), subjectOf(c), id); err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, gin.H{"id": id})
}

func (h *Handlers) settings(c *gin.Context) {
	ok(c, "", userOf(c))
}

type settingsReq struct {
	FullName        string `form:"full_name" json:"full_name" binding:"required"`
	Phone           string `form:"phone" json:"phone" binding:"required"`
	Email           string `form:"email" json:"email" binding:"omitempty,email"`
	Telegram        string `form:"telegram" json:"telegram"`
	CurrentPassword string `form:"current_password" json:"current_password"`
	NewPassword     string `form:"new_password" json:"new_password"`
}

func (h *Handlers) updateSettings(c *gin.Context) {
	const page = "/dashboard/settings"
	var req settingsReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, page, bindError(err))
		return
	}
	u, err := h.svc.Identity.UpdateSettings(c.Request.Context(), subjectOf(c), service.SettingsInput{
		FullName:        req.FullName,
		Phone:           req.Phone,
		Email:           optText(req.Email),
		Telegram:        optText(req.Telegram),
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, page, u)
}
