package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hasher хэширует и проверяет пароли.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher() BcryptHasher { return BcryptHasher{Cost: bcrypt.DefaultCost} }

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h BcryptHasher) Compare(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ErrWeakPassword — пароль короче MinPasswordLen.
var ErrWeakPassword = errors.New("password too short")

const MinPasswordLen = 6

func CheckPassword(password string) error {
	if len([]rune(password)) < MinPasswordLen {
		return ErrWeakPassword
	}
	return nil
}
