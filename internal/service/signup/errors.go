package signup

import "errors"

// Sentinel errors for the signup service layer.
var (
	ErrNotFound     = errors.New("waitlist entry not found")
	ErrDuplicate    = errors.New("email already registered")
	ErrInvalidEmail = errors.New("invalid email format")
	ErrInvalidField = errors.New("invalid field")

	ErrInvalidTransition = errors.New("invalid status transition")
)

// IsClientError reports whether err was caused by bad caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrInvalidField) ||
		errors.Is(err, ErrInvalidTransition)
}
