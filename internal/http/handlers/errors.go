// HTTP-layer error codes shared by every endpoint.
//
// Codes are lowercase snake_case and stable: clients branch on them for
// programmatic handling, so renaming one is a breaking change. Generic codes
// mirror the HTTP status; domain codes exist where the status alone is
// ambiguous (a 409 on accept means something different from a 409 on cancel).
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeRequestTaken     = "request_taken"
	ErrCodeRequestExpired   = "request_expired"
	ErrCodeCancelTooLate    = "cancel_too_late"
	ErrCodeSessionEnded     = "session_ended"
	ErrCodeValidation       = "validation_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
