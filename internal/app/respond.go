package app

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/logging"
	"github.com/Spok95/attendance-web/internal/metrics"
	"github.com/Spok95/attendance-web/internal/observability"
	"github.com/Spok95/attendance-web/internal/service"
)

// ErrorResponse — тело ответа с ошибкой для JSON-клиентов.
type ErrorResponse struct {
	Success   bool          `json:"success"`
	Error     *apperr.Error `json:"error"`
	Timestamp time.Time     `json:"timestamp"`
	RequestID string        `json:"request_id,omitempty"`
}

// isForm — запрос пришёл из HTML-формы и ждёт редиректа, а не JSON.
func isForm(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		return false
	}
	ct := c.ContentType()
	return ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data"
}

// ok отвечает на успешную операцию: форме — 303 на next, остальным — JSON.
func ok(c *gin.Context, next string, payload any) {
	if isForm(c) && next != "" {
		c.Redirect(http.StatusSeeOther, next)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": payload})
}

// fail переводит ошибку в ответ: форме — 303 назад с ?error=, остальным — JSON со статусом вида ошибки.
func fail(c *gin.Context, back string, err error) {
	e := apperr.As(err)
	metrics.HandlerErrors.WithLabelValues(string(e.Kind)).Inc()
	logError(c, e)

	if isForm(c) && back != "" {
		c.Redirect(http.StatusSeeOther, withQuery(back, "error", e.Message))
		return
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(e.Kind), ErrorResponse{
		Success:   false,
		Error:     e,
		Timestamp: time.Now(),
		RequestID: c.GetString(keyRequestID),
	})
}

// logError выбирает уровень по виду ошибки; внутренние уходят ещё и в Sentry.
func logError(c *gin.Context, e *apperr.Error) {
	ctx := c.Request.Context()
	log := logging.FromContext(ctx, loggerOf(c))
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("error_code", string(e.Kind)),
		zap.String("error_message", e.Message),
	}
	if e.Cause != nil {
		fields = append(fields, zap.Error(e.Cause))
	}
	switch e.Kind {
	case apperr.KindInternal:
		log.Error("internal error", fields...)
		observability.CaptureCtxErr(ctx, e)
	case apperr.KindExternalService:
		log.Warn("external service error", fields...)
	case apperr.KindAuthentication, apperr.KindAuthorization:
		log.Warn("access denied", fields...)
	default:
		log.Info("request rejected", fields...)
	}
}

func withQuery(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// back — страница, с которой пришла форма, иначе fallback. Берётся только путь
// внутри сайта: "//host" и "/\host" браузер понял бы как другой хост.
func back(c *gin.Context, fallback string) string {
	ref := c.GetHeader("Referer")
	if ref == "" {
		return fallback
	}
	u, err := url.Parse(ref)
	if err != nil || !localPath(u.Path) {
		return fallback
	}
	q := u.Query()
	q.Del("error")
	out := url.URL{Path: u.Path, RawQuery: q.Encode()}
	if !localPath(out.String()) {
		return fallback
	}
	return out.String()
}

func localPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}

// bindError переводит ошибки биндинга gin/validator в ValidationError с полями.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.KindValidation, "Некорректные данные запроса", err)
	}
	e := apperr.Validation("Проверьте заполнение полей")
	for _, fe := range verrs {
		e.WithField(fieldName(fe.Field()), fe.Tag())
	}
	return e
}

var fieldNames = map[string]string{
	"FullName":  "full_name",
	"Phone":     "phone",
	"Password":  "password",
	"GroupID":   "group_id",
	"StudentID": "student_id",
	"Date":      "date",
	"Name":      "name",
	"Username":  "username",
	"Question":  "question",
}

func fieldName(f string) string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return strings.ToLower(f)
}

// paramID — числовой параметр пути :id.
func paramID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("Некорректный идентификатор").WithField("id", "invalid")
	}
	return id, nil
}

// optInt64 — необязательный числовой параметр; пустая строка — nil.
func optInt64(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, apperr.Validation("Некорректное число: %s", s)
	}
	return &n, nil
}

// flag — значение чекбокса формы или булев параметр.
func flag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func optText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// sendFile отдаёт документ выгрузки как вложение.
func sendFile(c *gin.Context, f *service.File) {
	c.Header("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	c.Data(http.StatusOK, f.ContentType, f.Data)
}
