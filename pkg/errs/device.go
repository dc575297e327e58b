package errs

import "errors"

var (
	ErrDeviceNotFound       = errors.New("device not found")
	ErrAuthSetNotFound      = errors.New("auth set not found")
	ErrDeviceAlreadyExists  = errors.New("device already exists")
	ErrDeviceInvalidStatus  = errors.New("invalid device status")
	ErrDeviceInconsistent   = errors.New("device state inconsistent with external directory")
	ErrDeviceDecommissioned = errors.New("device is decommissioned")
)
