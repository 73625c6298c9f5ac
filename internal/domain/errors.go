package domain

import "errors"

// Sentinel errors shared by repositories, services and controllers.
var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUserNotFound  = errors.New("user not found")
	ErrTargetMissing = errors.New("registration target not found")
)

// Registration creation rejections. Each is recoverable by the caller and maps to a 4xx.
var (
	ErrRegistrationClosed    = errors.New("registration is closed")
	ErrTargetFull            = errors.New("registration target is full")
	ErrDuplicateRegistration = errors.New("an active registration already exists")
	ErrInvalidSubject        = errors.New("exactly one of account or public info must be provided")
)

// Payment and reconciliation errors.
var (
	// ErrRegistrationNotFound is returned when no registration matches a callback's transaction id.
	ErrRegistrationNotFound = errors.New("no registration for transaction")
	// ErrRoutingAmbiguous means a callback could not be attributed to exactly one domain.
	ErrRoutingAmbiguous = errors.New("callback routing is ambiguous")
	// ErrStaleTransition is returned by repositories when a conditional status update matched no row.
	ErrStaleTransition = errors.New("registration state changed concurrently")
	// ErrTransitionConflict means the requested transition contradicts the registration's current state.
	ErrTransitionConflict = errors.New("registration state conflicts with requested transition")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrCallbackInProgress = errors.New("callback for this transaction is already being processed")
	ErrInvalidCallback    = errors.New("invalid payment callback")
	ErrCounterUnderflow   = errors.New("aggregate counter would become negative")
)
