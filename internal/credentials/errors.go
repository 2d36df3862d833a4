package credentials

import "errors"

// Validation errors for create and update input.
var (
	ErrEmailRequired    = errors.New("email is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrInvalidRole      = errors.New("invalid role")
	ErrInvalidStatus    = errors.New("invalid status")
)

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmailRequired) || errors.Is(err, ErrPasswordRequired) ||
		errors.Is(err, ErrInvalidRole) || errors.Is(err, ErrInvalidStatus)
}
