package logging

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Spok95/attendance-web/internal/ctxutil"
)

type Log struct {
	Base   *zap.Logger
	Sugar  *zap.SugaredLogger
	Level  zap.AtomicLevel
	Closer func()
}

func Init(level, env string) (*Log, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	var cfg zap.Config
	if strings.ToLower(env) == "prod" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return nil, err
	}
	base = base.With(zap.String("service", "attendance-web"))
	return &Log{
		Base:   base,
		Sugar:  base.Sugar(),
		Level:  lvl,
		Closer: func() { _ = base.Sync() },
	}, nil
}

// Nop — логгер-заглушка для тестов.
func Nop() *Log {
	base := zap.NewNop()
	return &Log{Base: base, Sugar: base.Sugar(), Level: zap.NewAtomicLevel(), Closer: func() {}}
}

// FromContext добавляет к логгеру поля запроса, если они есть в контексте.
func FromContext(ctx context.Context, l *zap.Logger) *zap.Logger {
	if ctx == nil {
		return l
	}
	fields := make([]zap.Field, 0, 3)
	if id, ok := ctxutil.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if uid, ok := ctxutil.UserID(ctx); ok {
		fields = append(fields, zap.Int64("user_id", uid))
	}
	if op, ok := ctxutil.Op(ctx); ok {
		fields = append(fields, zap.String("op", op))
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}
