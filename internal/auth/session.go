package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Spok95/attendance-web/internal/models"
)

const (
	CookieName = "attendance_session"
	issuer     = "attendance-web"
)

var ErrInvalidSession = errors.New("invalid session")

// Claims — содержимое подписанной cookie. Роль только для логов:
// права всегда берутся из свежей записи пользователя.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Sessions выдаёт и проверяет HS256-токены сессии.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *Sessions) TTL() time.Duration { return s.ttl }

func (s *Sessions) Issue(u *models.User) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: string(u.Role),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, exp, nil
}

// Parse возвращает id пользователя из действительного токена.
func (s *Sessions) Parse(token string) (int64, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidSession
	}
	return id, nil
}
