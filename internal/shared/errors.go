package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrOutOfScope occurs when a caller touches a branch it is not assigned to.
	ErrOutOfScope = errors.New("branch outside caller scope")
	// ErrRoleNotAllowed occurs when the caller role cannot perform the action.
	ErrRoleNotAllowed = errors.New("role not allowed")
)
