package eir

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned, wrapped in an *InputError, for loan records the
// pipeline refuses to compute.
var ErrInvalidInput = errors.New("invalid input")

// InputError names the agreement and field that failed validation.
type InputError struct {
	AgreementID string
	Field       string
	Reason      string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s for agreement %s", e.Reason, e.AgreementID)
	}
	return fmt.Sprintf("invalid %s for agreement %s: %s", e.Field, e.AgreementID, e.Reason)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(agreement, field, reason string) error {
	return &InputError{AgreementID: agreement, Field: field, Reason: reason}
}

// IsInvalidInput reports whether err was caused by a malformed loan record.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
