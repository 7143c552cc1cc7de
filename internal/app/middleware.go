package app

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/auth"
	"github.com/Spok95/attendance-web/internal/ctxutil"
	"github.com/Spok95/attendance-web/internal/metrics"
	"github.com/Spok95/attendance-web/internal/models"
	"github.com/Spok95/attendance-web/internal/observability"
	"github.com/Spok95/attendance-web/internal/scope"
)

// ключи gin.Context
const (
	keyRequestID = "request_id"
	keyLogger    = "logger"
	keySubject   = "subject"
	keyUser      = "user"
)

func loggerOf(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(keyLogger); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}

// RequestID берёт X-Request-ID клиента или генерирует новый и кладёт его в контекст запроса.
func RequestID(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(keyRequestID, id)
		c.Set(keyLogger, log)
		c.Header("X-Request-ID", id)

		ctx := ctxutil.WithRequestID(c.Request.Context(), id)
		ctx = ctxutil.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger пишет строку на каждый запрос и метрики по шаблону маршрута.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		route := c.FullPath()
		metrics.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), latency)

		fields := []zap.Field{
			zap.String("request_id", c.GetString(keyRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if uid, ok := ctxutil.UserID(c.Request.Context()); ok {
			fields = append(fields, zap.Int64("user_id", uid))
		}
		loggerOf(c).Info("request processed", fields...)
	}
}

// Recovery — паника в обработчике превращается в 500 с логом и событием в Sentry.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		loggerOf(c).Error("panic recovered",
			zap.String("request_id", c.GetString(keyRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.String("stack", string(debug.Stack())),
		)
		observability.CapturePanic(recovered)
		fail(c, "", apperr.Internal(fmt.Errorf("panic: %v", recovered)))
	})
}

// UserSource — откуда сессия получает актуальную запись пользователя.
type UserSource interface {
	CurrentUser(ctx context.Context, id int64) (*models.User, error)
}

// Session читает cookie сессии и, если пользователь существует и активен,
// кладёт в контекст субъекта. Без сессии запрос идёт дальше анонимным.
func Session(sessions *auth.Sessions, users UserSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(auth.CookieName)
		if err != nil || token == "" {
			c.Next()
			return
		}
		id, err := sessions.Parse(token)
		if err != nil {
			c.Next()
			return
		}
		u, err := users.CurrentUser(c.Request.Context(), id)
		if err != nil {
			fail(c, "", err)
			return
		}
		// удалённый, отклонённый или ещё не подтверждённый пользователь теряет сессию
		if s, ok := scope.SubjectOf(u); ok {
			c.Set(keySubject, s)
			c.Set(keyUser, u)
			ctx := ctxutil.WithUserID(c.Request.Context(), u.ID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// RequireSubject пропускает только аутентифицированные запросы.
func RequireSubject() gin.HandlerFunc {
	return func(c *gin.Context) {
		if subjectOf(c) == nil {
			if isForm(c) || (c.Request.Method == http.MethodGet && acceptsHTML(c)) {
				c.Redirect(http.StatusSeeOther, "/auth/login")
				c.Abort()
				return
			}
			fail(c, "", apperr.New(apperr.KindAuthentication, "Требуется вход в систему"))
			return
		}
		c.Next()
	}
}

func acceptsHTML(c *gin.Context) bool {
	return c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML
}

func subjectOf(c *gin.Context) scope.Subject {
	v, ok := c.Get(keySubject)
	if !ok {
		return nil
	}
	s, _ := v.(scope.Subject)
	return s
}

func userOf(c *gin.Context) *models.User {
	v, ok := c.Get(keyUser)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

// WithOp помечает контекст запроса именем операции для логов и Sentry.
func WithOp(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(ctxutil.WithOp(c.Request.Context(), name))
		c.Next()
	}
}
