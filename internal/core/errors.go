package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimited       = errors.New("rate limited")
	ErrConflict          = errors.New("consistency conflict, retry later")
	ErrVersionConflict   = errors.New("account version changed")
	ErrAccountExists     = errors.New("account already exists")
	ErrInitialBalanceSet = errors.New("initial balance already set")
	ErrValidation        = errors.New("validation failed")
	ErrPartialWrite      = errors.New("partial write")

	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidKind          = errors.New("type must be credit or debit")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidDate          = errors.New("invalid date")
)

// FieldError describes a single rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every offending field of an input.
// errors.Is(err, ErrValidation) holds for any *ValidationError.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add records a field problem.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Has reports whether field already has a recorded problem.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Merge appends the fields of other that are not already present.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for _, f := range other.Fields {
		if !e.Has(f.Field) {
			e.Fields = append(e.Fields, f)
		}
	}
}

// OrNil returns nil when no field was rejected, so callers can
// `return v.OrNil()` without producing a typed-nil error.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// PartialWriteError reports that the balance and the entry log disagree
// after a failed write that could not be compensated. The account needs
// reconciliation; the operation must not be retried blindly.
type PartialWriteError struct {
	AccountID string
	EntryID   string
	Op        string
	Cause     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write on account %s (op=%s entry=%s): %v",
		e.AccountID, e.Op, e.EntryID, e.Cause)
}

func (e *PartialWriteError) Is(target error) bool {
	return target == ErrPartialWrite
}

func (e *PartialWriteError) Unwrap() error {
	return e.Cause
}
