package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL error codes handled by the store and materializer.
const (
	pgUniqueViolation = "23505"
	pgValueTooLong    = "22001"
	pgDuplicateTable  = "42P07"
	pgDuplicateObject = "42710"
)

// IsUniqueViolation reports whether err is a unique or primary-key collision.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// IsValueTooLong reports whether err means a value exceeded a column's declared length.
func IsValueTooLong(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgValueTooLong
	}
	return strings.Contains(strings.ToLower(err.Error()), "value too long")
}

// IsAlreadyExists reports whether err means a table, index or constraint already exists.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgDuplicateTable, pgDuplicateObject:
			return true
		}
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
