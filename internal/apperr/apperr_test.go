package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindConflict, KindOf(Conflict("phone %s taken", "+7")))

	wrapped := fmt.Errorf("register: %w", NotFound("group"))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestErrorsIsBySentinel(t *testing.T) {
	err := fmt.Errorf("ctx: %w", Forbidden())
	assert.True(t, errors.Is(err, ErrAuthorization))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestAs_WrapsUntyped(t *testing.T) {
	cause := errors.New("db down")
	e := As(cause)
	assert.Equal(t, KindInternal, e.Kind)
	assert.ErrorIs(t, e, cause)
	assert.NotContains(t, e.Message, "db down")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindConflict:        http.StatusConflict,
		KindAuthentication:  http.StatusUnauthorized,
		KindAccountPending:  http.StatusForbidden,
		KindAccountRejected: http.StatusForbidden,
		KindAuthorization:   http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindExternalService: http.StatusBadGateway,
		KindRateLimited:     http.StatusTooManyRequests,
		KindInternal:        http.StatusInternalServerError,
	}
	for k, want := range cases {
		assert.Equal(t, want, HTTPStatus(k), k)
	}
}
