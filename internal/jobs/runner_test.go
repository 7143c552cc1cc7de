package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Spok95/attendance-web/internal/ctxutil"
)

func TestRunner_RunsImmediatelyAndRepeats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	var op atomic.Value
	New(ctx, zap.NewNop()).Every(10*time.Millisecond, "tick", func(ctx context.Context) error {
		if name, ok := ctxutil.Op(ctx); ok {
			op.Store(name)
		}
		calls.Add(1)
		return nil
	})

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "job:tick", op.Load())
}

func TestRunner_SurvivesPanicsAndErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	New(ctx, nil).Every(5*time.Millisecond, "flaky", func(context.Context) error {
		n := calls.Add(1)
		switch n {
		case 1:
			panic("boom")
		case 2:
			return errors.New("db down")
		}
		return nil
	})

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestRunner_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	New(ctx, nil).Every(5*time.Millisecond, "stop", func(context.Context) error {
		calls.Add(1)
		return nil
	})
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()

	time.Sleep(20 * time.Millisecond)
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load()-after, int32(1))
}
