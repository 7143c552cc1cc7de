package app

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/auth"
	"github.com/Spok95/attendance-web/internal/metrics"
	"github.com/Spok95/attendance-web/internal/service"
)

func (h *Handlers) authRoutes(g *gin.RouterGroup) {
	g.POST("/register/leader", h.registerLeader)
	g.POST("/register/curator", h.registerCurator)
	g.POST("/register/admin", h.registerAdmin)
	g.POST("/login", h.login)
	g.GET("/logout", h.logout)
	g.POST("/logout", h.logout)
	g.GET("/groups", h.registrationOptions)
}

type registerLeaderReq struct {
	FullName string `form:"full_name" json:"full_name" binding:"required"`
	Phone    string `form:"phone" json:"phone" binding:"required"`
	Telegram string `form:"telegram" json:"telegram"`
	Password string `form:"password" json:"password" binding:"required"`
	GroupID  int64  `form:"group_id" json:"group_id" binding:"required"`
}

func (h *Handlers) registerLeader(c *gin.Context) {
	const page = "/auth/register/leader"
	var req registerLeaderReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, page, bindError(err))
		return
	}
	u, err := h.svc.Identity.RegisterLeader(c.Request.Context(), service.RegisterLeaderInput{
		FullName: req.FullName,
		Phone:    req.Phone,
		Telegram: optText(req.Telegram),
		Password: req.Password,
		GroupID:  req.GroupID,
	})
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, "/auth/login?registered=1", u)
}

type registerCuratorReq struct {
	FullName string  `form:"full_name" json:"full_name" binding:"required"`
	Phone    string  `form:"phone" json:"phone" binding:"required"`
	Telegram string  `form:"telegram" json:"telegram"`
	Password string  `form:"password" json:"password" binding:"required"`
	GroupIDs []int64 `form:"group_ids" json:"group_ids"`
	CMKID    *int64  `form:"cmk_id" json:"cmk_id"`
}

func (h *Handlers) registerCurator(c *gin.Context) {
	const page = "/auth/register/curator"
	var req registerCuratorReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, page, bindError(err))
		return
	}
	if req.CMKID != nil && *req.CMKID <= 0 {
		req.CMKID = nil
	}
	u, err := h.svc.Identity.RegisterCurator(c.Request.Context(), service.RegisterCuratorInput{
		FullName: req.FullName,
		Phone:    req.Phone,
		Telegram: optText(req.Telegram),
		Password: req.Password,
		GroupIDs: req.GroupIDs,
		CMKID:    req.CMKID,
	})
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, "/auth/login?registered=1", u)
}

type registerAdminReq struct {
	FullName string `form:"full_name" json:"full_name" binding:"required"`
	Phone    string `form:"phone" json:"phone" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

// registerAdmin — скрытая форма; ключ передаётся в query ?key=.
func (h *Handlers) registerAdmin(c *gin.Context) {
	page := "/auth/register/admin?key=" + c.Query("key")
	var req registerAdminReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, page, bindError(err))
		return
	}
	u, err := h.svc.Identity.RegisterAdmin(c.Request.Context(), c.Query("key"), service.RegisterAdminInput{
		FullName: req.FullName,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		fail(c, page, err)
		return
	}
	ok(c, "/auth/login", u)
}

type loginReq struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

func (h *Handlers) login(c *gin.Context) {
	const page = "/auth/login"
	var req loginReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, page, bindError(err))
		return
	}
	ctx := c.Request.Context()
	key := strings.TrimSpace(req.Username) + "|" + c.ClientIP()

	blocked, err := h.limiter.Blocked(ctx, key)
	if err != nil {
		// недоступный лимитер не должен закрывать вход
		loggerOf(c).Warn("login limiter unavailable", zap.Error(err))
	}
	if blocked {
		metrics.LoginAttempts.WithLabelValues("blocked").Inc()
		fail(c, page, apperr.RateLimited())
		return
	}

	u, err := h.svc.Identity.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		kind := apperr.KindOf(err)
		metrics.LoginAttempts.WithLabelValues(strings.ToLower(string(kind))).Inc()
		if kind == apperr.KindAuthentication {
			if ferr := h.limiter.Fail(ctx, key); ferr != nil {
				loggerOf(c).Warn("login limiter unavailable", zap.Error(ferr))
			}
		}
		fail(c, page, err)
		return
	}
	_ = h.limiter.Reset(ctx, key)

	token, exp, err := h.sessions.Issue(u)
	if err != nil {
		fail(c, page, err)
		return
	}
	metrics.LoginAttempts.WithLabelValues("ok").Inc()
	h.setSessionCookie(c, token, int(h.sessions.TTL().Seconds()))
	ok(c, "/dashboard/", gin.H{"user": u, "expires_at": exp})
}

func (h *Handlers) logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	if c.Request.Method == http.MethodGet || isForm(c) {
		c.Redirect(http.StatusSeeOther, "/auth/login")
		return
	}
	ok(c, "", nil)
}

func (h *Handlers) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, token, maxAge, "/", "", h.cookieSecure, true)
}

// registrationOptions — группы и ЦМК для форм регистрации.
func (h *Handlers) registrationOptions(c *gin.Context) {
	ctx := c.Request.Context()
	groups, err := h.svc.Groups.Public(ctx)
	if err != nil {
		fail(c, "", err)
		return
	}
	cmks, err := h.svc.CMKs.List(ctx)
	if err != nil {
		fail(c, "", err)
		return
	}
	ok(c, "", gin.H{"groups": groups, "cmks": cmks})
}
