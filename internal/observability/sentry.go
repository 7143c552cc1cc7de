package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Spok95/attendance-web/internal/ctxutil"
)

func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

func CaptureErr(err error) {
	if err != nil {
		sentry.CaptureException(err)
	}
}

// CaptureCtxErr отправляет ошибку с тегами запроса (request_id, user_id, op).
func CaptureCtxErr(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		if id, ok := ctxutil.RequestID(ctx); ok {
			scope.SetTag("request_id", id)
		}
		if op, ok := ctxutil.Op(ctx); ok {
			scope.SetTag("op", op)
		}
		if uid, ok := ctxutil.UserID(ctx); ok {
			scope.SetUser(sentry.User{ID: strconv.FormatInt(uid, 10), IPAddress: ctxutil.ClientIP(ctx)})
		}
	})
	hub.CaptureException(err)
}

// CapturePanic — для recover() в фоновых задачах и middleware.
func CapturePanic(recovered any) {
	if recovered == nil {
		return
	}
	sentry.CurrentHub().Recover(recovered)
}
