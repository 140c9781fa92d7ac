package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument   = 1000
	ErrCodeInvalidJSON       = 1001
	ErrCodeRequestTooLarge   = 1002
	ErrCodeInvalidQuery      = 1003
	ErrCodeInvalidID         = 1004
	ErrCodeMissingRequired   = 1009
	ErrCodeInvalidAttachment = 1015
	ErrCodeInvalidMediaType  = 1016
	ErrCodeInvalidHours      = 1017

	// Domain state (2xxx)
	ErrCodePostNotFound       = 2001
	ErrCodeUserNotFound       = 2002
	ErrCodeAttachmentNotFound = 2003
	ErrCodeContentNotFound    = 2004

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003
	ErrCodeMethodNotAllowed  = 3004

	// Internal/system (4xxx)
	ErrCodeInternal         = 4001
	ErrCodeStoreFailure     = 4002
	ErrCodeDirectoryFailure = 4003
	ErrCodeBlobStoreFailure = 4004
	ErrCodeNotImplemented   = 4005
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodePostNotFound
	case 405:
		return ErrCodeMethodNotAllowed
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 501:
		return ErrCodeNotImplemented
	default:
		return 0
	}
}
