package errors

import (
	"errors"
	"fmt"
)

// Query failure taxonomy. ParseAmbiguity and NoUsableTerms are never
// surfaced to callers as failures; they exist so collaborators can report
// them and tests can assert on them.
var (
	ErrParseAmbiguity          = errors.New("malformed query operator")
	ErrNoUsableTerms           = errors.New("query has no usable terms")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrCacheCorruption         = errors.New("cache entry corrupt")
	ErrPeerUnavailable         = errors.New("peer unavailable")
	ErrInvalidInput            = errors.New("invalid input")
	ErrNotFound                = errors.New("not found")
	ErrTimeout                 = errors.New("operation timed out")
)

// AppError attaches the failing operation and a human message to a sentinel.
type AppError struct {
	Err     error
	Op      string
	Message string
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, op string, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: message,
	}
}

func Newf(sentinel error, op string, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Unavailable wraps a collaborator failure so that errors.Is reports
// ErrCollaboratorUnavailable while keeping the cause in the chain.
func Unavailable(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrCollaboratorUnavailable, op, cause)
}

// IsUnavailable reports whether err stems from a failed collaborator call.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCollaboratorUnavailable) || errors.Is(err, ErrPeerUnavailable) || errors.Is(err, ErrTimeout)
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
