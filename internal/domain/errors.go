package domain

import "errors"

var (
	// ErrInvalidInput marks requests with missing or non-numeric fields.
	// Concrete failures are *InputError values that match it via errors.Is.
	ErrInvalidInput = errors.New("invalid input")

	// ErrContentUnreachable is returned when URL content fails the reachability probe.
	ErrContentUnreachable = errors.New("invalid content URL")

	// ErrNotFound is returned when no record lies within the resolve threshold.
	ErrNotFound = errors.New("no record found within threshold")
)

// InputError describes a rejected request field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string { return e.Reason }

// Is lets errors.Is(err, ErrInvalidInput) match any InputError.
func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }
