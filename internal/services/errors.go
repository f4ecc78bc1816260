// Package services defines the business logic for the live-support broker:
// chat request lifecycle, sessions and messages, feedback, and
// notifications. This file centralizes common service-level error values so
// they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Request lifecycle errors.
var (
	// ErrRequestNotFound indicates the chat request does not exist.
	ErrRequestNotFound = errors.New("chat request not found")

	// ErrRequestTaken indicates another agent's outcome won the race: the
	// request is no longer pending. Clients treat this as benign and simply
	// drop the request from their pending view.
	ErrRequestTaken = errors.New("chat request already resolved")

	// ErrRequestExpired indicates the wait budget elapsed before the agent
	// acted.
	ErrRequestExpired = errors.New("chat request expired")

	// ErrCancelTooLate is returned when a visitor withdraws a request that
	// already has an outcome. Cancellation is advisory, so callers close
	// quietly instead of surfacing an error.
	ErrCancelTooLate = errors.New("too late to cancel")

	// Validation errors for the create-request form. These mirror the
	// client-side checks; the broker enforces them regardless.
	ErrNameRequired        = errors.New("display name is required")
	ErrMessageTooShort     = errors.New("message must be at least 20 characters")
	ErrCategoryNotFound    = errors.New("chat category not found")
	ErrSubcategoryRequired = errors.New("subcategory selection is required for this category")
	ErrSubcategoryInvalid  = errors.New("subcategory does not belong to the category")
)

// Session errors.
var (
	// ErrSessionNotFound indicates the session does not exist or the caller
	// is not one of its participants.
	ErrSessionNotFound = errors.New("chat session not found")

	// ErrSessionEnded is returned when appending a message to a session that
	// has already reached its terminal state.
	ErrSessionEnded = errors.New("chat session already ended")
)

// Feedback errors.
var (
	// ErrInvalidRating is returned when any of the three mandatory ratings
	// falls outside 1..5.
	ErrInvalidRating = errors.New("ratings must be between 1 and 5")

	// ErrSessionNotEnded is returned when feedback arrives for a session
	// that is still live.
	ErrSessionNotEnded = errors.New("session is still active")

	// ErrDuplicateFeedback is returned when a session already has feedback.
	ErrDuplicateFeedback = errors.New("feedback already exists")
)

// Notification errors.
var (
	// ErrNotificationNotFound indicates the notification does not exist.
	ErrNotificationNotFound = errors.New("notification not found")
)
