package employee

import "errors"

var (
	ErrInvalidID        = errors.New("employee: invalid id")
	ErrInvalidScopeID   = errors.New("employee: invalid scope id")
	ErrInvalidStatus    = errors.New("employee: invalid status")
	ErrEmployeeNotFound = errors.New("employee: not found")
)
