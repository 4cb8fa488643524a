package notification

import "errors"

// Sentinel errors for the notification service layer.
var (
	ErrInvalidTemplate = errors.New("invalid template")
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidField    = errors.New("invalid field")
	ErrProvider        = errors.New("email provider error")
)
