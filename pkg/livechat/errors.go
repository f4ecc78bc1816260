// Package livechat is the client core for the live support widget and the
// operator queue console: the request lifecycle state machine, the countdown
// timer, the messaging channel, the notification stream and the feedback
// gate, plus a REST client for the broker's HTTP surface.
package livechat

import (
	"errors"
	"fmt"
)

// ValidationError reports a request-form field that failed local validation.
// It never reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// TransportError wraps a failed REST call or an unexpectedly closed channel.
// Always retryable and always surfaced for user-initiated actions.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StateConflict is a benign outcome of a race the backend already resolved,
// such as an accept beaten by another agent or a cancel arriving after the
// request was taken. Callers reconcile local state and move on.
type StateConflict struct {
	Code    string
	Message string
}

func (e *StateConflict) Error() string {
	return fmt.Sprintf("state conflict: %s", e.Code)
}

// ErrAuthExpired signals that the backend rejected the auth token. It drives
// the surrounding application to a logged-out state instead of a retry loop.
var ErrAuthExpired = errors.New("auth token rejected")

// IsConflict reports whether err is a benign StateConflict.
func IsConflict(err error) bool {
	var sc *StateConflict
	return errors.As(err, &sc)
}
