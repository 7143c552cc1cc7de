package ctxutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	_, ok := UserID(ctx)
	assert.False(t, ok)
	_, ok = RequestID(ctx)
	assert.False(t, ok)
	assert.Equal(t, "", ClientIP(ctx))

	ctx = WithUserID(ctx, 42)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithOp(ctx, "students.create")
	ctx = WithClientIP(ctx, "10.0.0.1")

	uid, ok := UserID(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(42), uid)
	rid, ok := RequestID(ctx)
	require.True(t, ok)
	assert.Equal(t, "req-1", rid)
	op, ok := Op(ctx)
	require.True(t, ok)
	assert.Equal(t, "students.create", op)
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
}

func TestWithDBTimeout_UsesShorterParentDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	ctx, c2 := WithDBTimeout(parent)
	defer c2()

	dl, ok := ctx.Deadline()
	require.True(t, ok)
	assert.LessOrEqual(t, time.Until(dl), 200*time.Millisecond)
}

func TestWithTimeout_ZeroMeansCancelOnly(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)
}
