package bot

import "errors"

var (
	ErrValidationFailed = errors.New("validation failed")
	ErrNotRegistered    = errors.New("user is not registered")
	ErrAccessDenied     = errors.New("access denied")
	ErrAlreadyCompleted = errors.New("one-off form already completed")
	ErrSessionMissing   = errors.New("no active session")
)

// ValidationError is a user-facing rejection of a step input. The step is
// not advanced and the user may retry.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

func invalid(message string) error {
	return &ValidationError{Message: message}
}
