// Package jobs — периодические фоновые задачи сервера.
package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/attendance-web/internal/ctxutil"
	"github.com/Spok95/attendance-web/internal/metrics"
	"github.com/Spok95/attendance-web/internal/observability"
)

type Job func(ctx context.Context) error

type Runner struct {
	ctx context.Context
	log *zap.Logger
}

func New(ctx context.Context, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{ctx: ctx, log: log}
}

// Every запускает fn сразу и затем раз в interval, пока не отменён контекст раннера.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for r.ctx.Err() == nil {
			r.run(name, fn)
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

func (r *Runner) run(name string, fn Job) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			metrics.JobErrors.WithLabelValues(name).Inc()
			r.log.Error("job panicked", zap.String("job", name), zap.Any("panic", rec))
			observability.CapturePanic(rec)
		}
	}()

	ctx := ctxutil.WithOp(r.ctx, "job:"+name)
	err := fn(ctx)
	metrics.ObserveJob(name, time.Since(start))
	if err != nil && ctx.Err() == nil {
		metrics.JobErrors.WithLabelValues(name).Inc()
		r.log.Warn("job failed", zap.String("job", name), zap.Error(err))
		observability.CaptureCtxErr(ctx, fmt.Errorf("job %s: %w", name, err))
	}
}
