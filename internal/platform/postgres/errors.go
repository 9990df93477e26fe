package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/store"
)

// PostgreSQL error codes
const (
	uniqueViolationCode     = "23505"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"
	undefinedTableCode      = "42P01"
	serializationFailure    = "40001"
	deadlockDetected        = "40P01"
	cannotConnectNow        = "57P03"
	tooManyConnections      = "53300"
	connectionExceptionCls  = "08"
	invalidAuthorizationCls = "28"
)

// MapError maps a database error to an appropriate store error.
// It wraps the original error to preserve context and provide better debugging information.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		case checkViolationCode:
			return fmt.Errorf("%w: check constraint violation (%s): %v",
				store.ErrInvalidEntity, pgErr.ConstraintName, err)
		case notNullViolationCode:
			return fmt.Errorf("%w: not null violation (%s): %v",
				store.ErrInvalidEntity, pgErr.ColumnName, err)
		}
	}

	return err
}

// IsUniqueViolation checks if the given error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// CheckRowsAffected examines the number of rows affected by a database operation.
// If no rows were affected, it returns notFound.
func CheckRowsAffected(result sql.Result, notFound error) error {
	if result == nil {
		return fmt.Errorf("nil result provided to CheckRowsAffected")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

// brokerReason classifies a database failure for the broker driver.
// Connection problems, server overload and transaction conflicts are
// transient; rejected credentials and a missing queue table are permanent.
func brokerReason(err error) broker.Reason {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return broker.ReasonServiceTimeout
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return broker.ReasonServiceUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, connectionExceptionCls),
			pgErr.Code == cannotConnectNow,
			pgErr.Code == tooManyConnections,
			pgErr.Code == serializationFailure,
			pgErr.Code == deadlockDetected:
			return broker.ReasonServiceUnavailable
		case strings.HasPrefix(pgErr.Code, invalidAuthorizationCls):
			return broker.ReasonUnauthorized
		case pgErr.Code == undefinedTableCode:
			return broker.ReasonEntityNotFound
		}
		return broker.ReasonUnknown
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) {
		return broker.ReasonServiceUnavailable
	}
	return broker.ReasonUnknown
}

// brokerError wraps a database failure as a classified broker.Error.
func brokerError(op, channel string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var be *broker.Error
	if errors.As(err, &be) {
		return err
	}
	return broker.NewError(op, channel, brokerReason(err), err)
}
