package ierr

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrInternalServer = errors.New("internal server error")

	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrSigningFailure     = errors.New("token signing failed")
	ErrAPIKeyNotFound     = errors.New("api key not found or disabled")
)
