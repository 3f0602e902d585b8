package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Postgres error class 23505.
const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err's chain contains a Postgres unique
// violation, optionally scoped to a single constraint name. Both driver
// error types are handled since gorm and goose pull in different drivers.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == uniqueViolationCode &&
			(constraint == "" || pgxErr.ConstraintName == constraint)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode &&
			(constraint == "" || pqErr.Constraint == constraint)
	}

	return false
}
