package verify

import (
	"errors"
	"fmt"
)

// CheckError represents a failed consistency check.
//
// Check errors include:
//   - Count mismatch: per-scope active music vs official alias counts
//   - Orphan reference: alias row with no music row
//   - Invalid enum value: alias_type outside the allowed set
//   - Unique constraint violation: duplicate (scope, alias) rows
//   - Identity permanence violation: a published natural key resolving to a
//     different internal id than before
//
// CheckError includes structured fields for diagnostics.
type CheckError struct {
	// Code identifies the error category.
	Code CheckErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// CheckErrorCode categorizes consistency check errors.
type CheckErrorCode string

const (
	// ErrCodeCountMismatch indicates active-flag counts disagree with
	// derived alias counts.
	ErrCodeCountMismatch CheckErrorCode = "COUNT_MISMATCH"

	// ErrCodeOrphanReference indicates an alias row whose textage_id has no
	// music row.
	ErrCodeOrphanReference CheckErrorCode = "ORPHAN_REFERENCE"

	// ErrCodeInvalidEnumValue indicates an alias_type outside the allowed
	// set.
	ErrCodeInvalidEnumValue CheckErrorCode = "INVALID_ENUM_VALUE"

	// ErrCodeUniqueConstraintViolation indicates a (scope, alias) pair on
	// more than one row.
	ErrCodeUniqueConstraintViolation CheckErrorCode = "UNIQUE_CONSTRAINT_VIOLATION"

	// ErrCodeIdentityPermanenceViolation indicates a previously published
	// natural key now maps to a different internal id.
	ErrCodeIdentityPermanenceViolation CheckErrorCode = "IDENTITY_PERMANENCE_VIOLATION"
)

// Error implements the error interface.
func (e *CheckError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCheckError returns true if the error is a consistency check failure.
// Uses errors.As to handle wrapped errors.
func IsCheckError(err error) bool {
	var ce *CheckError
	return errors.As(err, &ce)
}

// IsPermanenceError returns true if the error is an identity permanence
// violation. Uses errors.As to handle wrapped errors.
func IsPermanenceError(err error) bool {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeIdentityPermanenceViolation
	}
	return false
}
