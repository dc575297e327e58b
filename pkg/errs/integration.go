package errs

import "errors"

var (
	ErrIntegrationNotFound           = errors.New("integration not found")
	ErrIntegrationInvalidCredentials = errors.New("invalid integration credentials")
	ErrUnknownProvider               = errors.New("unknown integration provider")
)
