// Package app — HTTP-слой: маршруты gin, middleware и обработчики поверх service.
package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Spok95/attendance-web/internal/assistant"
	"github.com/Spok95/attendance-web/internal/auth"
	"github.com/Spok95/attendance-web/internal/metrics"
	"github.com/Spok95/attendance-web/internal/service"
)

type Deps struct {
	DB           *sql.DB
	Service      *service.Service
	Users        UserSource
	Sessions     *auth.Sessions
	Limiter      auth.LoginLimiter
	Assistant    *assistant.Client
	Log          *zap.Logger
	Location     *time.Location
	CORSOrigins  []string
	CookieSecure bool
}

type Handlers struct {
	svc          *service.Service
	sessions     *auth.Sessions
	limiter      auth.LoginLimiter
	assistant    *assistant.Client
	loc          *time.Location
	cookieSecure bool
}

// NewRouter собирает gin.Engine со всеми маршрутами.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Users == nil && d.Service != nil {
		d.Users = d.Service.Identity
	}
	h := &Handlers{
		svc:          d.Service,
		sessions:     d.Sessions,
		limiter:      d.Limiter,
		assistant:    d.Assistant,
		loc:          d.Location,
		cookieSecure: d.CookieSecure,
	}

	r := gin.New()
	r.Use(RequestID(d.Log), RequestLogger(), Recovery())
	if len(d.CORSOrigins) > 0 {
		cfg := cors.DefaultConfig()
		cfg.AllowOrigins = d.CORSOrigins
		cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		cfg.AllowHeaders = []string{"Content-Type", "Accept", "X-Request-ID"}
		cfg.AllowCredentials = true
		r.Use(cors.New(cfg))
	}

	r.GET("/healthz", health(d.DB))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.Use(Session(d.Sessions, d.Users))
	h.authRoutes(r.Group("/auth", WithOp("auth")))

	dash := r.Group("/dashboard", RequireSubject(), WithOp("dashboard"))
	h.dashboardRoutes(dash)
	h.directoryRoutes(dash)
	h.reportRoutes(dash)
	h.statsRoutes(dash)

	r.POST("/assistant/ask", RequireSubject(), WithOp("assistant"), h.askAssistant)
	r.GET("/", func(c *gin.Context) {
		if subjectOf(c) != nil {
			c.Redirect(http.StatusSeeOther, "/dashboard/")
			return
		}
		c.Redirect(http.StatusSeeOther, "/auth/login")
	})
	return r
}

func health(database *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if database == nil {
			c.String(http.StatusServiceUnavailable, "db not configured")
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 800*time.Millisecond)
		defer cancel()
		t0 := time.Now()
		if err := database.PingContext(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, "db not ok: "+err.Error())
			return
		}
		metrics.ObserveDBPing(time.Since(t0))
		c.String(http.StatusOK, "ok")
	}
}

type HTTPServer struct {
	srv *http.Server
}

// StartHTTP запускает сервер в фоне; при отмене ctx он аккуратно останавливается.
func StartHTTP(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) *HTTPServer {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		log.Info("http server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	return &HTTPServer{srv: srv}
}

// Shutdown — явная остановка (например, если ctx не отменяется).
func (s *HTTPServer) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }
