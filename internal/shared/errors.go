package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)

// ValidationError rejects malformed input before any store access.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConflictError signals concurrent modification detected by the store.
// The caller must re-fetch current state before retrying; the service
// layer never retries on its own.
type ConflictError struct {
	Err error
}

func (e *ConflictError) Error() string { return "conflict: " + e.Err.Error() }

func (e *ConflictError) Unwrap() error { return e.Err }

// StoreUnavailableError wraps transport or backing-store failures. The
// failed operation left no partial state behind.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string { return "store unavailable: " + e.Err.Error() }

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// MapStoreError classifies low-level store failures into the domain
// taxonomy. Already-classified errors and errors it does not recognise
// pass through unchanged.
func MapStoreError(err error) error {
	if err == nil {
		return nil
	}
	var ce *ConflictError
	var se *StoreUnavailableError
	if errors.As(err, &ce) || errors.As(err, &se) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return &ConflictError{Err: err}
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &StoreUnavailableError{Err: err}
	}
	if pgconn.SafeToRetry(err) {
		return &StoreUnavailableError{Err: err}
	}
	return err
}
