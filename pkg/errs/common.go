package errs

import "errors"

var (
	ErrValidateBadRequest = errors.New("struct validation error")
	ErrUnauthorized       = errors.New("missing or invalid credentials")
)
