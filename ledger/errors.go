package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced entity version does not exist.
	ErrNotFound = errors.New("version not found")

	// ErrDuplicateVersion signals that a concurrent writer claimed the same
	// version number. It is retried internally by the engines and should not
	// normally reach a caller.
	ErrDuplicateVersion = errors.New("duplicate version number, concurrent append detected")

	// ErrConflict is returned when an append kept losing the version-number
	// race until the bounded retries were exhausted. The whole operation can
	// be retried by the caller.
	ErrConflict = errors.New("version conflict persisted after retries")

	// ErrStorage is returned when the durable store failed, independent of
	// the input. It is not retried by the ledger.
	ErrStorage = errors.New("ledger storage operation failed")

	// ErrNilDatabaseConnection is returned by engine constructors when no
	// database connection is supplied.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when an empty history table name is supplied.
	ErrEmptyTableName = errors.New("empty history table name supplied")
)

// Violation describes one broken validation rule on one field.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Message
}

// ValidationError aggregates every validation rule an input broke, so a
// single corrected resubmission can fix all issues at once.
type ValidationError struct {
	Violations []Violation
}

// NewValidationError builds a ValidationError from one or more violations.
func NewValidationError(violations ...Violation) *ValidationError {
	return &ValidationError{Violations: violations}
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}

	messages := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		messages[i] = v.Message
	}

	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasField reports whether any violation concerns the given field.
func (e *ValidationError) HasField(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}

	return false
}

// AsValidationError unwraps err into a *ValidationError if possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr, true
	}

	return nil, false
}
