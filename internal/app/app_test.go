package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/attendance-web/internal/assistant"
	"github.com/Spok95/attendance-web/internal/auth"
	"github.com/Spok95/attendance-web/internal/models"
	"github.com/Spok95/attendance-web/internal/service"
)

func init() { gin.SetMode(gin.TestMode) }

type stubUsers map[int64]*models.User

func (s stubUsers) CurrentUser(_ context.Context, id int64) (*models.User, error) {
	return s[id], nil
}

var (
	testAdmin   = &models.User{ID: 1, FullName: "Админ", Role: models.Admin, IsConfirmed: true}
	testCurator = &models.User{ID: 2, FullName: "Куратор", Role: models.Curator, IsConfirmed: true}
	testLeader  = &models.User{ID: 3, FullName: "Староста", Role: models.Leader, IsConfirmed: true}
	testPending = &models.User{ID: 4, FullName: "Новый", Role: models.Curator}
)

type env struct {
	router   *gin.Engine
	sessions *auth.Sessions
	limiter  *auth.MemoryLimiter
}

// newEnv — роутер без БД: обработчики, которые отказывают до обращения к базе.
func newEnv(t *testing.T, ai *assistant.Client) *env {
	t.Helper()
	sessions := auth.NewSessions("test-secret-0123456789", time.Hour)
	limiter := auth.NewMemoryLimiter(2, time.Minute)
	r := NewRouter(Deps{
		Service:   service.New(service.Deps{}),
		Users:     stubUsers{1: testAdmin, 2: testCurator, 3: testLeader, 4: testPending},
		Sessions:  sessions,
		Limiter:   limiter,
		Assistant: ai,
	})
	return &env{router: r, sessions: sessions, limiter: limiter}
}

func (e *env) do(t *testing.T, req *http.Request, as *models.User) *httptest.ResponseRecorder {
	t.Helper()
	if as != nil {
		token, _, err := e.sessions.Issue(as)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func jsonReq(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

func formReq(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var b errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b), w.Body.String())
	return b
}

func TestHealthz_WithoutDB(t *testing.T) {
	e := newEnv(t, nil)
	w := e.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil), nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestID_Echoed(t *testing.T) {
	e := newEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := e.do(t, req, nil)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	w = e.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil), nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestDashboard_RequiresSession(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, jsonReq(http.MethodGet, "/dashboard/", ""), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	b := decodeError(t, w)
	assert.False(t, b.Success)
	assert.Equal(t, "AUTHENTICATION_FAILED", b.Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/", nil)
	req.Header.Set("Accept", "text/html")
	w = e.do(t, req, nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/auth/login", w.Header().Get("Location"))
}

func TestSession_PendingAndForgedTokensAreAnonymous(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, jsonReq(http.MethodGet, "/dashboard/", ""), testPending)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged := auth.NewSessions("another-secret-0123456789", time.Hour)
	token, _, err := forged.Issue(testAdmin)
	require.NoError(t, err)
	req := jsonReq(http.MethodGet, "/dashboard/", "")
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	w = e.do(t, req, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExportPreview_NonAdmin(t *testing.T) {
	e := newEnv(t, nil)
	for _, u := range []*models.User{testCurator, testLeader} {
		w := e.do(t, jsonReq(http.MethodGet, "/dashboard/api/export-preview?period=month", ""), u)
		assert.Equal(t, http.StatusForbidden, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, false, body["success"])
	}
}

func TestExportPreview_NonAdminWithBadParams(t *testing.T) {
	e := newEnv(t, nil)
	cases := []struct {
		user  *models.User
		query string
	}{
		{testLeader, "format=docx"},
		{testCurator, "group_id=abc"},
		{testCurator, "period=custom&start_date=31.03.2025"},
	}
	for _, tc := range cases {
		w := e.do(t, jsonReq(http.MethodGet, "/dashboard/api/export-preview?"+tc.query, ""), tc.user)
		assert.Equal(t, http.StatusForbidden, w.Code, tc.query)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, false, body["success"], tc.query)
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	e := newEnv(t, nil)
	w := e.do(t, jsonReq(http.MethodGet, "/dashboard/export-students/process?format=docx", ""), testAdmin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, w).Error.Code)
}

func TestConfirmUser_FormRedirectsWithError(t *testing.T) {
	e := newEnv(t, nil)
	w := e.do(t, formReq("/dashboard/confirm_user/4", url.Values{}), testCurator)
	require.Equal(t, http.StatusSeeOther, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/dashboard/confirm_users", loc.Path)
	assert.Equal(t, "Доступ запрещён", loc.Query().Get("error"))
}

func TestGroupWrites_AdminOnly(t *testing.T) {
	e := newEnv(t, nil)
	w := e.do(t, jsonReq(http.MethodPost, "/dashboard/groups/add", `{"name":"Х-101"}`), testCurator)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ACCESS_DENIED", decodeError(t, w).Error.Code)
}

func TestBindError_Fields(t *testing.T) {
	e := newEnv(t, nil)
	w := e.do(t, jsonReq(http.MethodPost, "/auth/login", `{"username":"+7900"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	b := decodeError(t, w)
	assert.Equal(t, "VALIDATION_ERROR", b.Error.Code)
	assert.Equal(t, "required", b.Error.Fields["password"])

	w = e.do(t, jsonReq(http.MethodPost, "/dashboard/absences/edit/abc", `{}`), testAdmin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_Throttled(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	key := "+7900|192.0.2.1"
	require.NoError(t, e.limiter.Fail(ctx, key))
	require.NoError(t, e.limiter.Fail(ctx, key))

	w := e.do(t, jsonReq(http.MethodPost, "/auth/login", `{"username":"+7900","password":"secret1"}`), nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", decodeError(t, w).Error.Code)
}

func TestLogout_ClearsCookie(t *testing.T) {
	e := newEnv(t, nil)
	w := e.do(t, httptest.NewRequest(http.MethodGet, "/auth/logout", nil), testAdmin)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.True(t, cookies[0].MaxAge < 0)
}

func TestAssistant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Зайдите в настройки."}}]}`))
	}))
	defer srv.Close()

	off := newEnv(t, assistant.New(assistant.Config{BaseURL: srv.URL}))
	w := off.do(t, jsonReq(http.MethodPost, "/assistant/ask", `{"question":"Как сменить пароль?"}`), testLeader)
	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])

	on := newEnv(t, assistant.New(assistant.Config{Enabled: true, BaseURL: srv.URL, Model: "m"}))
	w = on.do(t, jsonReq(http.MethodPost, "/assistant/ask", `{"question":"Как сменить пароль?"}`), testLeader)
	require.Equal(t, http.StatusOK, w.Code)
	body = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Зайдите в настройки.", body["answer"])

	w = on.do(t, jsonReq(http.MethodPost, "/assistant/ask", `{"question":"  "}`), testLeader)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = on.do(t, jsonReq(http.MethodPost, "/assistant/ask", `{"question":"x"}`), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWithQuery(t *testing.T) {
	assert.Equal(t, "/dashboard/students?error=%D0%9E%D1%88%D0%B8%D0%B1%D0%BA%D0%B0", withQuery("/dashboard/students", "error", "Ошибка"))
	assert.Equal(t, "/auth/register/admin?error=x&key=k", withQuery("/auth/register/admin?key=k", "error", "x"))
}

func TestLocalPath(t *testing.T) {
	for _, p := range []string{"/", "/dashboard/", "/dashboard/users?role=leader"} {
		assert.True(t, localPath(p), p)
	}
	for _, p := range []string{"", "//evil.example/x", "/\\evil.example", "evil.example/x", "https://evil.example/"} {
		assert.False(t, localPath(p), p)
	}
}

func TestDeleteUser_RefererStaysOnSite(t *testing.T) {
	e := newEnv(t, nil)
	cases := map[string]string{
		"https://evil.example//evil.example/x":         "/dashboard/admin",
		"https://evil.example/%2F%2Fevil.example/x":    "/dashboard/admin",
		"https://evil.example/\\evil.example/x":        "/dashboard/admin",
		"evil.example/x":                               "/dashboard/admin",
		"http://localhost/dashboard/users?role=leader": "/dashboard/users",
	}
	for ref, wantPath := range cases {
		req := formReq("/dashboard/users/delete/0", url.Values{})
		req.Header.Set("Referer", ref)
		w := e.do(t, req, testAdmin)
		require.Equal(t, http.StatusSeeOther, w.Code, ref)

		loc := w.Header().Get("Location")
		assert.True(t, strings.HasPrefix(loc, "/") && !strings.HasPrefix(loc, "//"), "%s -> %s", ref, loc)
		u, err := url.Parse(loc)
		require.NoError(t, err)
		assert.Equal(t, wantPath, u.Path, ref)
		assert.Empty(t, u.Host, ref)
		assert.NotEmpty(t, u.Query().Get("error"), ref)
	}
}
