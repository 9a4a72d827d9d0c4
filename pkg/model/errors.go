package model

import "errors"

// Error taxonomy shared by the access packages. Callers match with errors.Is;
// messages are wrapped with fmt.Errorf("%w: ...") at the point of failure.
var (
	// ErrNotFound means a user, project or membership required by the operation is absent
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means the operation is not valid for the current state
	ErrInvalidState = errors.New("invalid state")

	// ErrForbidden means the actor may not perform the operation
	ErrForbidden = errors.New("forbidden")
)

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidState reports whether err wraps ErrInvalidState
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsForbidden reports whether err wraps ErrForbidden
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
