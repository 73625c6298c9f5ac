package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"campusclubs/internal/adapters/payment/aamarpay"
	"campusclubs/internal/delivery/http/helpers"
	"campusclubs/internal/domain"
)

const maxCallbackBytes = 64 << 10

// CallbackSuccessResponse is the success response envelope for callbacks answered with JSON (200).
type CallbackSuccessResponse struct {
	Data  *domain.CallbackResult `json:"data"`
	Error *helpers.APIError      `json:"error"`
}

// WebhookAck is the data payload returned to webhook deliveries.
type WebhookAck struct {
	Received bool `json:"received"`
}

type PaymentController struct {
	Logger *slog.Logger
	Router domain.CallbackRouter
	// Webhooks is nil when the configured gateway has no webhook channel.
	Webhooks domain.WebhookParser
}

func NewPaymentController(logger *slog.Logger, router domain.CallbackRouter, webhooks domain.WebhookParser) *PaymentController {
	return &PaymentController{
		Logger:   logger,
		Router:   router,
		Webhooks: webhooks,
	}
}

// HandleCallback godoc
// @Summary Receive a payment gateway callback
// @Description Landing endpoint for the gateway's success, fail and cancel redirects. Accepts form posts, query strings and JSON. The transaction is verified with the gateway before a success is applied. Browsers are redirected (303) to the return URL stored on the registration; clients sending Accept: application/json, or registrations without return URLs, get the result as JSON.
// @Tags payments
// @Accept x-www-form-urlencoded
// @Accept json
// @Produce json
// @Param outcome path string true "Callback outcome" Enums(success, fail, cancel)
// @Success 200 {object} controllers.CallbackSuccessResponse
// @Success 303 "redirect to the client return URL"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Failure 422 {object} helpers.APIResponse "error.code: routing_error"
// @Failure 502 {object} helpers.APIResponse "error.code: gateway_error"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /payments/callback/{outcome} [get]
// @Router /payments/callback/{outcome} [post]
func (c *PaymentController) HandleCallback(w http.ResponseWriter, r *http.Request) {
	outcome, ok := domain.ParseOutcome(r.PathValue("outcome"))
	if !ok {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "outcome must be one of success, fail, cancel")
		return
	}
	payload, err := readCallbackPayload(w, r)
	if err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
		return
	}
	result, err := c.Router.Route(r.Context(), payload, outcome)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}

	target := returnURL(result.Registration, outcome)
	if target == "" || wantsJSON(r) {
		helpers.WriteJSONSuccess(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func readCallbackPayload(w http.ResponseWriter, r *http.Request) (*domain.CallbackPayload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if r.Method == http.MethodPost && mediaType == "application/json" {
		var payload domain.CallbackPayload
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCallbackBytes)).Decode(&payload); err != nil {
			return nil, err
		}
		return &payload, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBytes)
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return aamarpay.CallbackFromForm(r.Form), nil
}

// returnURL picks the client page for the registration's state after the callback and tags it
// with the registration id, code and status.
func returnURL(reg *domain.Registration, outcome domain.CallbackOutcome) string {
	if reg == nil {
		return ""
	}
	raw := reg.ReturnURLs.Fail
	switch {
	case reg.RegistrationStatus == domain.RegistrationConfirmed:
		raw = reg.ReturnURLs.Success
	case outcome == domain.OutcomeCancel && reg.ReturnURLs.Cancel != "":
		raw = reg.ReturnURLs.Cancel
	}
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("registration_id", reg.ID)
	q.Set("registration_code", reg.RegistrationCode)
	q.Set("status", string(reg.RegistrationStatus))
	u.RawQuery = q.Encode()
	return u.String()
}

func wantsJSON(r *http.Request) bool {
	for _, v := range r.Header.Values("Accept") {
		for _, part := range strings.Split(v, ",") {
			if mt, _, err := mime.ParseMediaType(part); err == nil && mt == "application/json" {
				return true
			}
		}
	}
	return false
}

// HandleStripeWebhook godoc
// @Summary Receive a Stripe webhook
// @Description Verifies the Stripe-Signature header and applies checkout session outcomes. Event types without a payment outcome are acknowledged and ignored.
// @Tags payments
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe webhook signature"
// @Success 200 {object} helpers.APIResponse "data.received: true"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /payments/stripe/webhook [post]
func (c *PaymentController) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if c.Webhooks == nil {
		helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "webhooks are not enabled")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBytes))
	if err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
		return
	}
	payload, outcome, ok, err := c.Webhooks.ParseWebhook(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		c.Logger.WarnContext(r.Context(), "webhook rejected", "err", err)
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid webhook")
		return
	}
	if !ok {
		helpers.WriteJSONSuccess(w, http.StatusOK, WebhookAck{Received: true})
		return
	}
	if _, err := c.Router.Route(r.Context(), payload, outcome); err != nil {
		// Redeliveries cannot change either outcome.
		switch {
		case errors.Is(err, domain.ErrRegistrationNotFound):
			c.Logger.WarnContext(r.Context(), "webhook for unknown transaction", "transaction_id", payload.TransactionID)
			helpers.WriteJSONSuccess(w, http.StatusOK, WebhookAck{Received: true})
			return
		case errors.Is(err, domain.ErrTransitionConflict):
			c.Logger.ErrorContext(r.Context(), "webhook contradicts registration state", "transaction_id", payload.TransactionID, "outcome", string(outcome))
			helpers.WriteJSONSuccess(w, http.StatusOK, WebhookAck{Received: true})
			return
		}
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, WebhookAck{Received: true})
}
