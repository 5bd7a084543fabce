package database

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tetherhq/tether-engine/pkg/retry"
)

// IsRetryable reports whether err is a transient database failure worth
// retrying. PostgreSQL errors are classified by SQLSTATE; anything else falls
// back to the generic pattern matching in the retry package.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// A canceled caller is never worth retrying
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 covers connection exceptions
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"53300", // too_many_connections
			"57P03": // cannot_connect_now
			return true
		}
		// Constraint violations, bad SQL, and other states are permanent
		return false
	}

	return retry.IsRetryable(err)
}

// retryableError carries an explicit retryability decision alongside the
// original error. It satisfies retry.RetryableError.
type retryableError struct {
	err       error
	retryable bool
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

// IsRetryable implements retry.RetryableError.
func (e *retryableError) IsRetryable() bool { return e.retryable }

// ClassifyRetryable wraps err with an explicit retryability marker so that
// retry.DoIfRetryable honors the SQLSTATE classification instead of falling
// back to string matching. The original error remains reachable via
// errors.Is/errors.As.
func ClassifyRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err, retryable: IsRetryable(err)}
}
