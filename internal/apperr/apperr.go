// Package apperr — типизированные ошибки бизнес-операций.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInternal        Kind = "INTERNAL_ERROR"
	KindValidation      Kind = "VALIDATION_ERROR"
	KindConflict        Kind = "CONFLICT"
	KindAuthentication  Kind = "AUTHENTICATION_FAILED"
	KindAccountPending  Kind = "ACCOUNT_PENDING"
	KindAccountRejected Kind = "ACCOUNT_REJECTED"
	KindAuthorization   Kind = "ACCESS_DENIED"
	KindNotFound        Kind = "NOT_FOUND"
	KindExternalService Kind = "EXTERNAL_SERVICE_ERROR"
	KindRateLimited     Kind = "TOO_MANY_REQUESTS"
)

// Error — ошибка с видом; Message показывается пользователю, Cause только в логах.
type Error struct {
	Kind    Kind              `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Cause   error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is позволяет errors.Is(err, apperr.ErrNotFound) сравнивать по виду.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

func (e *Error) WithField(name, msg string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[name] = msg
	return e
}

// Сентинелы для errors.Is.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrAuthentication  = &Error{Kind: KindAuthentication}
	ErrAccountPending  = &Error{Kind: KindAccountPending}
	ErrAccountRejected = &Error{Kind: KindAccountRejected}
	ErrAuthorization   = &Error{Kind: KindAuthorization}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrExternalService = &Error{Kind: KindExternalService}
)

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// Authentication всегда с одним и тем же текстом: не раскрываем, что именно неверно.
func Authentication() *Error {
	return New(KindAuthentication, "Неверный телефон или пароль")
}

func AccountPending() *Error {
	return New(KindAccountPending, "Ваш аккаунт ожидает подтверждения администратора")
}

func AccountRejected() *Error {
	return New(KindAccountRejected, "Ваша заявка была отклонена администратором")
}

func Forbidden() *Error { return New(KindAuthorization, "Доступ запрещён") }

func External(service string, cause error) *Error {
	return Wrap(KindExternalService, fmt.Sprintf("Сервис %s недоступен", service), cause)
}

func RateLimited() *Error {
	return New(KindRateLimited, "Слишком много попыток входа, попробуйте позже")
}

func Internal(cause error) *Error {
	return Wrap(KindInternal, "Внутренняя ошибка сервера", cause)
}

// KindOf возвращает вид ошибки; всё нетипизированное считается внутренним.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As приводит любую ошибку к *Error, заворачивая нетипизированные в Internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAccountPending, KindAccountRejected, KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindExternalService:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
