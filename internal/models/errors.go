package models

import "errors"

// ValidationError rejects malformed input before any store access.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Not-found covers both "absent" and "owned by someone else" so existence
// never leaks across users.
var (
	ErrAlarmNotFound  = errors.New("alarm not found")
	ErrDeviceNotFound = errors.New("device not found")
)
