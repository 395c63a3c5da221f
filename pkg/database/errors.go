package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATE codes the services react to.
const (
	codeUniqueViolation      = "23505"
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeQueryCanceled        = "57014"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation also accepts the translated gorm sentinel.
func IsUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || pgCode(err) == codeUniqueViolation
}

// IsLockTimeout reports a lock_timeout or statement cancellation while waiting on a row lock.
func IsLockTimeout(err error) bool {
	switch pgCode(err) {
	case codeLockNotAvailable, codeQueryCanceled:
		return true
	}
	return false
}

// IsRetryable reports deadlock and serialization failures.
func IsRetryable(err error) bool {
	switch pgCode(err) {
	case codeDeadlockDetected, codeSerializationFailure:
		return true
	}
	return false
}
