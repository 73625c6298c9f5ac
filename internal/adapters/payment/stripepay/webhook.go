package stripepay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"

	"campusclubs/internal/domain"
)

// ErrWebhookNotConfigured is returned when no webhook signing secret was configured.
var ErrWebhookNotConfigured = errors.New("stripe webhook secret not configured")

// ParseWebhook verifies the Stripe-Signature header and maps checkout session events to a callback.
// Events that carry no final payment outcome return ok=false.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*domain.CallbackPayload, domain.CallbackOutcome, bool, error) {
	if g.webhookSecret == "" {
		return nil, "", false, ErrWebhookNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, "", false, fmt.Errorf("%w: %v", domain.ErrInvalidCallback, err)
	}

	var outcome domain.CallbackOutcome
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		outcome = domain.OutcomeSuccess
	case "checkout.session.async_payment_failed":
		outcome = domain.OutcomeFail
	case "checkout.session.expired":
		outcome = domain.OutcomeCancel
	default:
		return nil, "", false, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, "", false, fmt.Errorf("%w: parse checkout session: %v", domain.ErrInvalidCallback, err)
	}
	// A completed session paid by a delayed method settles later through async_payment_*.
	if event.Type == "checkout.session.completed" && session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		return nil, "", false, nil
	}

	txnID := session.Metadata[metaTransactionID]
	if txnID == "" {
		txnID = session.ClientReferenceID
	}
	if txnID == "" {
		return nil, "", false, fmt.Errorf("%w: checkout session %s has no transaction id", domain.ErrInvalidCallback, session.ID)
	}
	cb := &domain.CallbackPayload{
		TransactionID: txnID,
		PayStatus:     string(session.PaymentStatus),
		Amount:        fmt.Sprintf("%d.%02d", session.AmountTotal/100, session.AmountTotal%100),
		Currency:      string(session.Currency),
		PassThrough: domain.PassThrough{
			OptA: session.Metadata[metaOptA],
			OptB: session.Metadata[metaOptB],
			OptC: session.Metadata[metaOptC],
			OptD: session.Metadata[metaOptD],
		},
	}
	switch event.Type {
	case "checkout.session.expired":
		cb.FailedReason = "checkout session expired"
	case "checkout.session.async_payment_failed":
		cb.FailedReason = "payment failed"
	}
	return cb, outcome, true, nil
}
