package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrTooLarge     = errors.New("payload too large")
	ErrIncomplete   = errors.New("upload incomplete")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
