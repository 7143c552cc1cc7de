package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/attendance-web/internal/apperr"
)

func TestAsk_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer ollama", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.1:8b", req.Model)
		assert.Equal(t, 1200, req.MaxTokens)
		assert.InDelta(t, 0.6, req.Temperature, 1e-9)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "Как добавить пропуск?", req.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Откройте раздел «Пропуски».  "}}]}`))
	}))
	defer srv.Close()

	c := New(Config{Enabled: true, BaseURL: srv.URL + "/v1/", Model: "llama3.1:8b", APIKey: "ollama"})
	answer, err := c.Ask(context.Background(), "  Как добавить пропуск? ")
	require.NoError(t, err)
	assert.Equal(t, "Откройте раздел «Пропуски».", answer)
}

func TestAsk_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{Enabled: true, BaseURL: srv.URL, Model: "x"})
	_, err := c.Ask(context.Background(), "вопрос")
	assert.Equal(t, apperr.KindExternalService, apperr.KindOf(err))

	_, err = c.Ask(context.Background(), "   ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	off := New(Config{BaseURL: srv.URL})
	_, err = off.Ask(context.Background(), "вопрос")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Equal(t, apperr.KindExternalService, apperr.KindOf(err))
}
