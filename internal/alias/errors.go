package alias

import (
	"errors"
	"fmt"
)

// ValidationError represents a rejected alias source.
//
// Validation errors include:
//   - Missing column: CSV header lacks a required column
//   - Empty required value: a required cell is blank after trimming
//   - Invalid enum value: alias_scope or alias_type outside the allowed set
//   - Duplicate key in source: two CSV rows claim the same (scope, alias)
//   - Orphan reference: textage_id has no music row
//   - Unique constraint violation: insertion collides with an existing alias
//
// ValidationError includes structured fields for diagnostics.
type ValidationError struct {
	// Code identifies the error category.
	Code ValidationErrorCode

	// Message is a human-readable description.
	Message string

	// Line is the 1-based CSV line of the offending row (0 when the error
	// is not tied to a single line).
	Line int

	// Details contains additional context.
	Details map[string]string
}

// ValidationErrorCode categorizes validation errors.
type ValidationErrorCode string

const (
	// ErrCodeMissingColumn indicates the CSV header lacks a required column.
	ErrCodeMissingColumn ValidationErrorCode = "MISSING_COLUMN"

	// ErrCodeEmptyRequiredValue indicates a required cell is blank.
	ErrCodeEmptyRequiredValue ValidationErrorCode = "EMPTY_REQUIRED_VALUE"

	// ErrCodeInvalidEnumValue indicates a cell value outside its allowed set.
	ErrCodeInvalidEnumValue ValidationErrorCode = "INVALID_ENUM_VALUE"

	// ErrCodeDuplicateKeyInSource indicates two source rows share a key that
	// must be unique.
	ErrCodeDuplicateKeyInSource ValidationErrorCode = "DUPLICATE_KEY_IN_SOURCE"

	// ErrCodeOrphanReference indicates a textage_id with no music row.
	ErrCodeOrphanReference ValidationErrorCode = "ORPHAN_REFERENCE"

	// ErrCodeUniqueConstraintViolation indicates an insert collided with an
	// existing (scope, alias) row.
	ErrCodeUniqueConstraintViolation ValidationErrorCode = "UNIQUE_CONSTRAINT_VIOLATION"
)

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line=%d)", e.Code, e.Message, e.Line)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsValidationError returns true if the error is an alias validation error.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func newMissingColumnError(columns []string) *ValidationError {
	return &ValidationError{
		Code:    ErrCodeMissingColumn,
		Message: fmt.Sprintf("manual alias CSV missing required columns: %v", columns),
	}
}

func newEmptyValueError(column string, line int) *ValidationError {
	return &ValidationError{
		Code:    ErrCodeEmptyRequiredValue,
		Message: fmt.Sprintf("manual alias CSV has empty required value: %s", column),
		Line:    line,
	}
}

func newInvalidEnumError(column, value string, line int) *ValidationError {
	return &ValidationError{
		Code:    ErrCodeInvalidEnumValue,
		Message: fmt.Sprintf("manual alias CSV has invalid %s", column),
		Line:    line,
		Details: map[string]string{"value": value},
	}
}
