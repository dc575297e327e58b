package errs

import "errors"

var (
	ErrSearchInvalidFilter      = errors.New("invalid search filter")
	ErrSearchInvalidSort        = errors.New("invalid sort criteria")
	ErrSearchInvalidAggregation = errors.New("invalid aggregation term")
)
