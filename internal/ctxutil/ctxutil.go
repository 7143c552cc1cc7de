package ctxutil

import (
	"context"
	"time"
)

// приватные ключи, чтобы исключить коллизии
type key int

const (
	keyRequestID key = iota
	keyUserID
	keyOpName
	keyClientIP
)

// WithRequestID /RequestID — идентификатор HTTP-запроса
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

func RequestID(ctx context.Context) (string, bool) {
	v := ctx.Value(keyRequestID)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// WithUserID /UserID — id аутентифицированного пользователя
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

func UserID(ctx context.Context) (int64, bool) {
	v := ctx.Value(keyUserID)
	if v == nil {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// WithOp /Op — имя операции (для логов/трейса)
func WithOp(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyOpName, name)
}

func Op(ctx context.Context) (string, bool) {
	v := ctx.Value(keyOpName)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// WithClientIP /ClientIP — адрес клиента для журнала аудита
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, keyClientIP, ip)
}

func ClientIP(ctx context.Context) string {
	s, _ := ctx.Value(keyClientIP).(string)
	return s
}

var (
	DefaultDBTimeout = 5 * time.Second
)

// WithTimeout — обёртка над context.WithTimeout; d<=0 означает без таймаута.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// WithDBTimeout — стандартный таймаут для БД.
func WithDBTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := parent.Deadline(); ok {
		// если у родителя осталось меньше DefaultDBTimeout — берем остаток
		remain := time.Until(dl)
		if remain < DefaultDBTimeout {
			return context.WithTimeout(parent, remain)
		}
	}
	return context.WithTimeout(parent, DefaultDBTimeout)
}
