package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Kind discriminates the two registration domains.
type Kind string

const (
	KindEvent Kind = "event"
	KindClub  Kind = "club"
)

// ParseKind returns the Kind for s, or false when s names no known domain.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindEvent:
		return KindEvent, true
	case KindClub:
		return KindClub, true
	}
	return "", false
}

// UserType tells which subject representation a registration carries.
type UserType string

const (
	UserTypeRegistered UserType = "registered"
	UserTypePublic     UserType = "public"
)

// RegistrationStatus is the business lifecycle of a registration.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationPaid      RegistrationStatus = "paid"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
	RegistrationRefunded  RegistrationStatus = "refunded"
)

// ActiveStatuses are the statuses that block a second registration for the same subject and target.
var ActiveStatuses = []RegistrationStatus{RegistrationPending, RegistrationPaid, RegistrationConfirmed}

// IsActive reports whether s is one of ActiveStatuses.
func (s RegistrationStatus) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// PaymentStatus is the payment lifecycle, tracked independently of RegistrationStatus.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Payment methods recorded on PaymentInfo.
const (
	PaymentMethodFree = "free"
)

// PublicInfo is the contact snapshot of a registrant without an account.
// swagger:model PublicInfo
type PublicInfo struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	StudentID string `json:"student_id,omitempty"`
}

// Validate returns error messages for missing or malformed fields.
func (p *PublicInfo) Validate() []string {
	var errs []string
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "public_info.name is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		errs = append(errs, "public_info.email is required")
	} else if _, err := mail.ParseAddress(p.Email); err != nil {
		errs = append(errs, "public_info.email is invalid")
	}
	if strings.TrimSpace(p.Phone) == "" {
		errs = append(errs, "public_info.phone is required")
	}
	return errs
}

// PaymentInfo is the payment sub-record, present once a payment session was opened.
// swagger:model PaymentInfo
type PaymentInfo struct {
	Method          string          `json:"method"`
	TransactionID   string          `json:"transaction_id"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	FailureReason   string          `json:"failure_reason,omitempty"`
}

// ReturnURLs are the client pages the payer is sent back to after the gateway round-trip.
type ReturnURLs struct {
	Success string `json:"success_url,omitempty"`
	Fail    string `json:"fail_url,omitempty"`
	Cancel  string `json:"cancel_url,omitempty"`
}

// Registration is a subject's attempt to join an event or a club.
// swagger:model Registration
type Registration struct {
	ID                 string             `json:"id"`
	Kind               Kind               `json:"kind"`
	TargetID           string             `json:"target_id"`
	UserType           UserType           `json:"user_type"`
	UserID             *string            `json:"user_id,omitempty"`
	PublicInfo         *PublicInfo        `json:"public_info,omitempty"`
	RegisteredByID     *string            `json:"registered_by_id,omitempty"`
	RegistrationCode   string             `json:"registration_code"`
	RegistrationStatus RegistrationStatus `json:"registration_status"`
	PaymentStatus      PaymentStatus      `json:"payment_status"`
	Amount             int64              `json:"amount"`
	Currency           string             `json:"currency"`
	PaymentInfo        *PaymentInfo       `json:"payment_info,omitempty"`
	ReturnURLs         ReturnURLs         `json:"return_urls"`
	RegisteredAt       time.Time          `json:"registered_at"`
	ConfirmedAt        *time.Time         `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
	RefundedAt         *time.Time         `json:"refunded_at,omitempty"`
	EmailSent          bool               `json:"email_sent"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Subject identifies who is registering: an account or a public registrant, never both.
type Subject struct {
	UserID     string
	PublicInfo *PublicInfo
}

// Validate enforces the account/public exclusivity.
func (s Subject) Validate() error {
	hasUser := strings.TrimSpace(s.UserID) != ""
	hasPublic := s.PublicInfo != nil
	if hasUser == hasPublic {
		return ErrInvalidSubject
	}
	if hasPublic {
		if errs := s.PublicInfo.Validate(); len(errs) > 0 {
			return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(errs, "; "))
		}
	}
	return nil
}

// UserType returns the discriminator matching the populated representation.
func (s Subject) UserType() UserType {
	if s.PublicInfo != nil {
		return UserTypePublic
	}
	return UserTypeRegistered
}

// NewRegistration builds a pending registration for subject on target. ID is set by the repository.
func NewRegistration(kind Kind, targetID string, subject Subject, code string, amount int64, currency string, now time.Time) *Registration {
	reg := &Registration{
		Kind:               kind,
		TargetID:           targetID,
		UserType:           subject.UserType(),
		RegistrationCode:   code,
		RegistrationStatus: RegistrationPending,
		PaymentStatus:      PaymentPending,
		Amount:             amount,
		Currency:           currency,
		RegisteredAt:       now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if subject.PublicInfo != nil {
		info := *subject.PublicInfo
		info.Email = strings.ToLower(strings.TrimSpace(info.Email))
		reg.PublicInfo = &info
	} else {
		userID := subject.UserID
		reg.UserID = &userID
	}
	return reg
}

// HasValidSubject reports whether exactly one subject representation is present and matches UserType.
func (r *Registration) HasValidSubject() bool {
	switch r.UserType {
	case UserTypeRegistered:
		return r.UserID != nil && *r.UserID != "" && r.PublicInfo == nil
	case UserTypePublic:
		return r.UserID == nil && r.PublicInfo != nil
	}
	return false
}

// TransactionID returns the gateway transaction id, or "" before a payment session exists.
func (r *Registration) TransactionID() string {
	if r.PaymentInfo == nil {
		return ""
	}
	return r.PaymentInfo.TransactionID
}

// IsRegistrant reports whether userID is the account the registration belongs to or was created by.
func (r *Registration) IsRegistrant(userID string) bool {
	if userID == "" {
		return false
	}
	if r.UserID != nil && *r.UserID == userID {
		return true
	}
	return r.RegisteredByID != nil && *r.RegisteredByID == userID
}

// ConsistentStatus reports whether a registration/payment status pair may be observed.
func ConsistentStatus(reg RegistrationStatus, pay PaymentStatus) bool {
	switch reg {
	case RegistrationPending:
		return pay == PaymentPending || pay == PaymentProcessing
	case RegistrationPaid, RegistrationConfirmed:
		return pay == PaymentCompleted
	case RegistrationCancelled:
		return true
	case RegistrationRefunded:
		return pay == PaymentRefunded
	}
	return false
}

// StatusChange is a conditional transition: it applies only when the current statuses are among
// FromStatus and FromPayment.
type StatusChange struct {
	FromStatus      []RegistrationStatus
	FromPayment     []PaymentStatus
	ToStatus        RegistrationStatus
	ToPayment       PaymentStatus
	At              time.Time
	GatewayResponse json.RawMessage
	FailureReason   string
}

// CounterDelta is the aggregate counter adjustment caused by moving from prev to the change's target.
func (c StatusChange) CounterDelta(prev RegistrationStatus) int {
	switch {
	case prev != RegistrationConfirmed && c.ToStatus == RegistrationConfirmed:
		return 1
	case prev == RegistrationConfirmed && c.ToStatus != RegistrationConfirmed:
		return -1
	}
	return 0
}

// Transitions used by the registration services.
var (
	// ChangeMarkPaid records a verified payment without confirming the registration (event domain).
	ChangeMarkPaid = StatusChange{
		FromStatus:  []RegistrationStatus{RegistrationPending},
		FromPayment: []PaymentStatus{PaymentPending, PaymentProcessing},
		ToStatus:    RegistrationPaid,
		ToPayment:   PaymentCompleted,
	}
	// ChangeConfirmPaid confirms a registration whose payment is already recorded.
	ChangeConfirmPaid = StatusChange{
		FromStatus:  []RegistrationStatus{RegistrationPaid},
		FromPayment: []PaymentStatus{PaymentCompleted},
		ToStatus:    RegistrationConfirmed,
		ToPayment:   PaymentCompleted,
	}
	// ChangeConfirmPending verifies payment and confirms in one step (club domain).
	ChangeConfirmPending = StatusChange{
		FromStatus:  []RegistrationStatus{RegistrationPending},
		FromPayment: []PaymentStatus{PaymentPending, PaymentProcessing},
		ToStatus:    RegistrationConfirmed,
		ToPayment:   PaymentCompleted,
	}
	// ChangePaymentFailed cancels a registration whose payment did not go through.
	ChangePaymentFailed = StatusChange{
		FromStatus:  []RegistrationStatus{RegistrationPending},
		FromPayment: []PaymentStatus{PaymentPending, PaymentProcessing},
		ToStatus:    RegistrationCancelled,
		ToPayment:   PaymentFailed,
	}
)

// CancelFrom returns the change cancelling a registration currently in prev, keeping its payment status.
func CancelFrom(prev RegistrationStatus, pay PaymentStatus) StatusChange {
	return StatusChange{
		FromStatus:  []RegistrationStatus{prev},
		FromPayment: []PaymentStatus{pay},
		ToStatus:    RegistrationCancelled,
		ToPayment:   pay,
	}
}

// RefundFrom returns the change refunding a registration currently in prev.
func RefundFrom(prev RegistrationStatus) StatusChange {
	return StatusChange{
		FromStatus:  []RegistrationStatus{prev},
		FromPayment: []PaymentStatus{PaymentCompleted},
		ToStatus:    RegistrationRefunded,
		ToPayment:   PaymentRefunded,
	}
}

// Matches reports whether reg is in one of the change's pre-states.
func (c StatusChange) Matches(reg *Registration) bool {
	return containsStatus(c.FromStatus, reg.RegistrationStatus) && containsPayment(c.FromPayment, reg.PaymentStatus)
}

// Apply mutates reg as the repository would after a successful conditional update.
// It returns false when reg is not in one of the change's pre-states.
func (c StatusChange) Apply(reg *Registration) bool {
	if !c.Matches(reg) {
		return false
	}
	at := c.At
	reg.RegistrationStatus = c.ToStatus
	reg.PaymentStatus = c.ToPayment
	reg.UpdatedAt = at
	switch c.ToStatus {
	case RegistrationConfirmed:
		reg.ConfirmedAt = &at
	case RegistrationCancelled:
		reg.CancelledAt = &at
	case RegistrationRefunded:
		reg.RefundedAt = &at
	}
	if reg.PaymentInfo != nil {
		if c.ToPayment == PaymentCompleted || c.ToPayment == PaymentFailed {
			if reg.PaymentInfo.ProcessedAt == nil {
				reg.PaymentInfo.ProcessedAt = &at
			}
		}
		if len(c.GatewayResponse) > 0 {
			reg.PaymentInfo.GatewayResponse = c.GatewayResponse
		}
		if c.FailureReason != "" {
			reg.PaymentInfo.FailureReason = c.FailureReason
		}
	}
	return true
}

func containsStatus(list []RegistrationStatus, s RegistrationStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPayment(list []PaymentStatus, s PaymentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// RegistrationRepository stores the registrations of one domain.
type RegistrationRepository interface {
	Create(ctx context.Context, reg *Registration) error
	GetByID(ctx context.Context, id string) (*Registration, error)
	GetByCode(ctx context.Context, code string) (*Registration, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*Registration, error)
	FindActive(ctx context.Context, targetID string, subject Subject) (*Registration, error)
	// AttachPayment stores the gateway session on a pending registration and moves payment to processing.
	AttachPayment(ctx context.Context, id string, info *PaymentInfo, at time.Time) (*Registration, error)
	// Transition applies change only if the current statuses match its pre-states; otherwise ErrStaleTransition.
	Transition(ctx context.Context, id string, change StatusChange) (*Registration, error)
	// ClaimEmail flips email_sent from false to true and reports whether this call did it.
	ClaimEmail(ctx context.Context, id string) (bool, error)
	// ReleaseEmail undoes ClaimEmail after a send that did not go out.
	ReleaseEmail(ctx context.Context, id string) error
	CountConfirmed(ctx context.Context, targetID string) (int, error)
	// CountHeld counts registrations created at or after since that are still awaiting payment.
	CountHeld(ctx context.Context, targetID string, since time.Time) (int, error)
	ListByTarget(ctx context.Context, targetID string, params PaginationParams) ([]*Registration, int, error)
}
