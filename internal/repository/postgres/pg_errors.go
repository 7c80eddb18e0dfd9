package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kirinyoku/tix-reserve/internal/repository"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// translateDBErr maps driver errors onto repository sentinels. Errors that
// already carry a repository meaning pass through untouched.
func translateDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		switch pge.Code {
		case codeUniqueViolation:
			return errors.Join(repository.ErrConflict, err)
		case codeSerializationFailure, codeDeadlockDetected:
			return errors.Join(repository.ErrStoreUnavailable, err)
		}
		return err
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return errors.Join(repository.ErrStoreUnavailable, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errors.Join(repository.ErrStoreUnavailable, err)
	}

	return err
}
