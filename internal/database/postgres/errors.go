package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/dataconn/internal/errs"
)

// PostgreSQL SQLSTATE classes and codes relevant to opening a pool.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection    = "08"
	pgClassInvalidAuth   = "28"
	pgErrInvalidCatalog  = "3D000"
	pgErrTooManyConns    = "53300"
	pgErrCannotConnectNw = "57P03"
)

// mapError classifies failures while opening, pinging or acquiring from the
// pool. Statement errors are never passed through here: callers receive the
// native *pgconn.PgError.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.ErrKindQueryFailed
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgClassConnection,
			pgErr.Code == pgErrTooManyConns,
			pgErr.Code == pgErrCannotConnectNw:
			kind = errs.ErrKindConnectionFailed
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgClassInvalidAuth:
			kind = errs.ErrKindPermissionDenied
		case pgErr.Code == pgErrInvalidCatalog:
			kind = errs.ErrKindNotFound
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// network, TLS, DNS
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
