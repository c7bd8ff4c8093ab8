package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrUploadFailed
	ErrUploadIncomplete
	ErrMergeFailed
	ErrParseFailed
	ErrAIUnavailable
	ErrAIConnectivity
	ErrAIAuth
	ErrAIFailed
	ErrTooLarge
)
