package domain

import "errors"

var (
	// ErrNotFound means the identity does not exist in the ERP (or the
	// realm is inactive, which is indistinguishable on purpose).
	ErrNotFound = errors.New("user not found")

	// ErrAuthRequired means the backend needs a bearer token obtained via
	// credential validation before it can answer the lookup.
	ErrAuthRequired = errors.New("authentication required")
)
