package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAmbiguous       = errors.New("ambiguous")
	ErrCatalogInvalid  = errors.New("invalid catalog")
	ErrInvariantBreach = errors.New("invariant breach")
)
