package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Spok95/attendance-web/internal/models"
)

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)
	assert.True(t, h.Compare(hash, "secret1"))
	assert.False(t, h.Compare(hash, "secret2"))
	assert.False(t, h.Compare("not-a-hash", "secret1"))
}

func TestCheckPassword(t *testing.T) {
	assert.ErrorIs(t, CheckPassword("abc"), ErrWeakPassword)
	assert.NoError(t, CheckPassword("пароль"))
}

func TestSessions_RoundTrip(t *testing.T) {
	s := NewSessions("0123456789abcdef-secret", time.Hour)
	token, exp, err := s.Issue(&models.User{ID: 42, Role: models.Curator})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	id, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestSessions_Rejects(t *testing.T) {
	s := NewSessions("0123456789abcdef-secret", time.Hour)
	token, _, err := s.Issue(&models.User{ID: 7, Role: models.Admin})
	require.NoError(t, err)

	other := NewSessions("another-secret-0123456789", time.Hour)
	_, err = other.Parse(token)
	assert.True(t, errors.Is(err, ErrInvalidSession))

	_, err = s.Parse(token + "x")
	assert.ErrorIs(t, err, ErrInvalidSession)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidSession, "expired token")
}

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(3, 15*time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		require.NoError(t, l.Fail(ctx, "k"))
	}
	blocked, _ := l.Blocked(ctx, "k")
	assert.False(t, blocked)

	require.NoError(t, l.Fail(ctx, "k"))
	blocked, _ = l.Blocked(ctx, "k")
	assert.True(t, blocked)

	other, _ := l.Blocked(ctx, "other")
	assert.False(t, other)

	now = now.Add(16 * time.Minute)
	blocked, _ = l.Blocked(ctx, "k")
	assert.False(t, blocked, "window expired")

	require.NoError(t, l.Fail(ctx, "k"))
	require.NoError(t, l.Reset(ctx, "k"))
	blocked, _ = l.Blocked(ctx, "k")
	assert.False(t, blocked)
}
