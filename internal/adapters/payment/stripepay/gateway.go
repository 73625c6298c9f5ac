package stripepay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"

	"campusclubs/internal/domain"
)

// Metadata keys carried on the checkout session and its payment intent.
const (
	metaTransactionID = "transaction_id"
	metaOptA          = "opt_a"
	metaOptB          = "opt_b"
	metaOptC          = "opt_c"
	metaOptD          = "opt_d"
)

// Config configures the Stripe gateway.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// SearchAttempts bounds how often Verify re-queries while a new payment intent is not yet searchable.
	SearchAttempts int
	SearchBackoff  time.Duration
}

// Gateway opens Stripe Checkout sessions and verifies payments through the PaymentIntent search API.
type Gateway struct {
	api           *client.API
	webhookSecret string
	attempts      int
	backoff       time.Duration
	logger        *slog.Logger
}

// NewGateway returns a Stripe gateway. backends may be nil to use Stripe's default endpoints.
func NewGateway(config Config, backends *stripe.Backends, logger *slog.Logger) (*Gateway, error) {
	if config.SecretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	attempts := config.SearchAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := config.SearchBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Gateway{
		api:           client.New(config.SecretKey, backends),
		webhookSecret: config.WebhookSecret,
		attempts:      attempts,
		backoff:       backoff,
		logger:        logger.With("gateway", "stripe"),
	}, nil
}

var (
	_ domain.PaymentGateway = (*Gateway)(nil)
	_ domain.WebhookParser  = (*Gateway)(nil)
)

func (g *Gateway) Name() string { return "stripe" }

func (g *Gateway) Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentSession, error) {
	metadata := map[string]string{
		metaTransactionID: req.TransactionID,
		metaOptA:          req.PassThrough.OptA,
		metaOptB:          req.PassThrough.OptB,
		metaOptC:          req.PassThrough.OptC,
		metaOptD:          req.PassThrough.OptD,
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(returnURL(req.SuccessURL, req)),
		CancelURL:         stripe.String(returnURL(req.CancelURL, req)),
		ClientReferenceID: stripe.String(req.TransactionID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if req.Customer.Email != "" {
		params.CustomerEmail = stripe.String(req.Customer.Email)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %v", domain.ErrGatewayUnavailable, err)
	}
	var raw json.RawMessage
	if s.LastResponse != nil {
		raw = s.LastResponse.RawJSON
	}
	return &domain.PaymentSession{URL: s.URL, TransactionID: req.TransactionID, Raw: raw}, nil
}

// returnURL appends the transaction reference so a browser redirect can be routed like a callback.
func returnURL(base string, req domain.PaymentRequest) string {
	q := url.Values{}
	q.Set("mer_txnid", req.TransactionID)
	q.Set(metaOptA, req.PassThrough.OptA)
	q.Set(metaOptB, req.PassThrough.OptB)
	q.Set(metaOptD, req.PassThrough.OptD)
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

// Verify finds the payment intent created for transactionID. Search results lag creation by a few
// seconds, so an empty result is retried before it counts as "not paid".
func (g *Gateway) Verify(ctx context.Context, transactionID string) (*domain.Verification, error) {
	query := fmt.Sprintf("metadata['%s']:'%s'", metaTransactionID, strings.ReplaceAll(transactionID, "'", ""))
	for attempt := 1; ; attempt++ {
		params := &stripe.PaymentIntentSearchParams{SearchParams: stripe.SearchParams{Query: query, Context: ctx}}
		iter := g.api.PaymentIntents.Search(params)
		var found *stripe.PaymentIntent
		for iter.Next() {
			pi := iter.PaymentIntent()
			if found == nil || pi.Status == stripe.PaymentIntentStatusSucceeded {
				found = pi
			}
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("%w: search payment intents: %v", domain.ErrGatewayUnavailable, err)
		}
		if found != nil {
			return verification(transactionID, found), nil
		}
		if attempt >= g.attempts {
			return &domain.Verification{
				TransactionID: transactionID,
				Status:        "not_found",
				FailureReason: "payment not found at gateway",
			}, nil
		}
		g.logger.DebugContext(ctx, "payment intent not searchable yet", "transaction_id", transactionID, "attempt", attempt)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, ctx.Err())
		case <-time.After(g.backoff):
		}
	}
}

func verification(transactionID string, pi *stripe.PaymentIntent) *domain.Verification {
	raw, _ := json.Marshal(pi)
	v := &domain.Verification{
		TransactionID: transactionID,
		Status:        string(pi.Status),
		Paid:          pi.Status == stripe.PaymentIntentStatusSucceeded,
		Amount:        pi.AmountReceived,
		Currency:      string(pi.Currency),
		Raw:           raw,
	}
	if v.Amount == 0 {
		v.Amount = pi.Amount
	}
	if !v.Paid && pi.LastPaymentError != nil {
		v.FailureReason = pi.LastPaymentError.Msg
	}
	return v
}
