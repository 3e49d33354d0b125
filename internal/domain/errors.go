package domain

import "errors"

// Sentinel errors returned by index service clients. Implementations wrap
// them so callers can use errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrPermission      = errors.New("permission denied")
	ErrTransient       = errors.New("transient failure")
	ErrInvalidArgument = errors.New("invalid argument")
)
