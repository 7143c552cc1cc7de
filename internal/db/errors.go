package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const codeUniqueViolation = "23505"

// UniqueViolation возвращает имя нарушенного ограничения уникальности.
// Понимает ошибки обоих драйверов: pgx (прод) и lib/pq (тесты).
func UniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return pgErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == codeUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// Имена ограничений из миграций.
const (
	ConstraintUserPhone   = "users_phone_key"
	ConstraintGroupName   = "groups_name_key"
	ConstraintGroupLeader = "groups_leader_id_key"
	ConstraintCMKName     = "cmks_name_key"
)
