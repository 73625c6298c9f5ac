package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so repositories can run inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
	pqInvalidText     = "22P02"
)

// noRow reports whether a single-row lookup found nothing. A key that cannot be parsed as the
// column's type, such as a malformed UUID, cannot match a row either.
func noRow(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || pqCode(err) == pqInvalidText
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func constraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}
