package domain

import "context"

// CreateRegistrationInput carries everything needed to open a registration.
type CreateRegistrationInput struct {
	TargetID string
	// Requester is nil for anonymous (public) registrants.
	Requester  *Requester
	PublicInfo *PublicInfo
	// MemberUserID lets a club account register one of its members (club domain only).
	MemberUserID string
	ReturnURLs   ReturnURLs
}

// RegistrationResult is returned by CreateRegistration. PaymentURL is empty when no payment is due.
type RegistrationResult struct {
	Registration *Registration `json:"registration"`
	PaymentURL   string        `json:"payment_url,omitempty"`
}

// RegistrationService is implemented once per domain (event, club).
type RegistrationService interface {
	Kind() Kind
	CreateRegistration(ctx context.Context, in CreateRegistrationInput) (*RegistrationResult, error)
	ProcessSuccess(ctx context.Context, cb *Callback) (*CallbackResult, error)
	ProcessFailure(ctx context.Context, cb *Callback) (*CallbackResult, error)
	Get(ctx context.Context, registrationID string, actor *Requester) (*Registration, error)
	ListByTarget(ctx context.Context, targetID string, actor *Requester, params PaginationParams) ([]*Registration, int, error)
	Cancel(ctx context.Context, registrationID string, actor *Requester) (*Registration, error)
	Refund(ctx context.Context, registrationID string, actor *Requester) (*Registration, error)
	Recount(ctx context.Context, targetID string, actor *Requester) (int, error)
}

// CallbackRouter resolves the owning domain of a gateway callback and dispatches it.
type CallbackRouter interface {
	Route(ctx context.Context, payload *CallbackPayload, outcome CallbackOutcome) (*CallbackResult, error)
}

// VerificationResult is the on-site check-in view of a registration code.
type VerificationResult struct {
	IsValid      bool          `json:"is_valid"`
	Kind         Kind          `json:"kind"`
	Registration *Registration `json:"registration"`
	Event        *Event        `json:"event,omitempty"`
	Club         *Club         `json:"club,omitempty"`
}

// VerificationService checks registration codes independently of the payment flow.
type VerificationService interface {
	VerifyCode(ctx context.Context, code string) (*VerificationResult, error)
}
