package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CallbackOutcome is what the gateway reports about a payment attempt.
type CallbackOutcome string

const (
	OutcomeSuccess CallbackOutcome = "success"
	OutcomeFail    CallbackOutcome = "fail"
	OutcomeCancel  CallbackOutcome = "cancel"
)

// ParseOutcome maps a callback path segment to an outcome.
func ParseOutcome(s string) (CallbackOutcome, bool) {
	switch CallbackOutcome(strings.ToLower(strings.TrimSpace(s))) {
	case OutcomeSuccess:
		return OutcomeSuccess, true
	case OutcomeFail:
		return OutcomeFail, true
	case OutcomeCancel:
		return OutcomeCancel, true
	}
	return "", false
}

// IsSuccess reports whether the outcome claims a completed payment.
func (o CallbackOutcome) IsSuccess() bool { return o == OutcomeSuccess }

// PassThrough holds the opaque fields the gateway echoes back unmodified.
type PassThrough struct {
	OptA string `json:"opt_a"`
	OptB string `json:"opt_b"`
	OptC string `json:"opt_c"`
	OptD string `json:"opt_d"`
}

// CallbackPayload is the gateway callback body as received.
type CallbackPayload struct {
	TransactionID string `json:"mer_txnid"`
	PayStatus     string `json:"pay_status"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	FailedReason  string `json:"failed_reason"`
	PassThrough
}

// CallbackRef is the typed routing reference embedded at initiation and validated on receipt.
type CallbackRef struct {
	Kind     Kind
	TargetID string
	UserID   string
}

// Callback is a validated callback handed to a registration service.
type Callback struct {
	TransactionID string
	Outcome       CallbackOutcome
	// Ref is nil when the payload carried no valid sealed reference.
	Ref          *CallbackRef
	FailedReason string
	Payload      *CallbackPayload
}

// CallbackResult describes what processing a callback did.
type CallbackResult struct {
	Kind         Kind          `json:"kind"`
	Registration *Registration `json:"registration"`
	// Applied is false when the callback was a duplicate of an already-applied outcome.
	Applied bool `json:"applied"`
}

// ContactInfo is the customer block sent to the gateway.
type ContactInfo struct {
	Name  string
	Email string
	Phone string
}

// PaymentRequest describes a hosted payment session to open.
type PaymentRequest struct {
	TransactionID string
	Amount        int64
	Currency      string
	Description   string
	Customer      ContactInfo
	SuccessURL    string
	FailURL       string
	CancelURL     string
	PassThrough   PassThrough
}

// PaymentSession is an opened hosted payment page.
type PaymentSession struct {
	URL           string
	TransactionID string
	Raw           json.RawMessage
}

// Verification is the gateway's authoritative view of a transaction.
type Verification struct {
	TransactionID string
	Paid          bool
	Status        string
	Amount        int64
	Currency      string
	FailureReason string
	Raw           json.RawMessage
}

// Check compares the verification with what the registration expects. It returns "" when the
// transaction is a valid, complete payment for reg, or the reason it is not.
func (v *Verification) Check(reg *Registration) string {
	switch {
	case v == nil:
		return "no verification result"
	case v.TransactionID != "" && v.TransactionID != reg.TransactionID():
		return fmt.Sprintf("transaction mismatch: %s", v.TransactionID)
	case !v.Paid:
		if v.FailureReason != "" {
			return v.FailureReason
		}
		return fmt.Sprintf("payment status %q", v.Status)
	case v.Amount != reg.Amount:
		return fmt.Sprintf("amount mismatch: expected %d, got %d", reg.Amount, v.Amount)
	case v.Currency != "" && !strings.EqualFold(v.Currency, reg.Currency):
		return fmt.Sprintf("currency mismatch: expected %s, got %s", reg.Currency, v.Currency)
	}
	return ""
}

// PaymentGateway opens hosted payment sessions and verifies transactions.
type PaymentGateway interface {
	Name() string
	Initiate(ctx context.Context, req PaymentRequest) (*PaymentSession, error)
	Verify(ctx context.Context, transactionID string) (*Verification, error)
}

// WebhookParser turns a signed provider webhook into a callback payload.
// ok is false for event types that carry no payment outcome.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (cb *CallbackPayload, outcome CallbackOutcome, ok bool, err error)
}

// CallbackLocker serializes concurrent deliveries of the same transaction across instances.
type CallbackLocker interface {
	TryLock(ctx context.Context, key string) (token string, acquired bool, err error)
	Release(ctx context.Context, key, token string) error
}
