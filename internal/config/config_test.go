package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/att?sslmode=disable")
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123")
	t.Setenv("CORS_ORIGINS", " http://a.local , ,http://b.local")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 12*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 5, cfg.Login.MaxAttempts)
	assert.Equal(t, "llama3.1:8b", cfg.Assistant.Model)
	assert.False(t, cfg.Assistant.Enabled)
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.CORSOrigins)
	require.NotNil(t, cfg.Location())
	assert.False(t, cfg.IsProd())
}

func TestParse_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123")

	_, err := Parse()
	require.Error(t, err)
}

func TestParse_ShortSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/att")
	t.Setenv("SESSION_SECRET", "short")

	_, err := Parse()
	require.Error(t, err)
}

func TestParse_BadTZFallsBackToLocal(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/att")
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123")
	t.Setenv("TZ", "Nowhere/Atlantis")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, time.Local, cfg.Location())
}
