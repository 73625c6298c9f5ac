package controllers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"campusclubs/internal/delivery/http/helpers"
	"campusclubs/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callbackResult(status domain.RegistrationStatus, urls domain.ReturnURLs) *domain.CallbackResult {
	return &domain.CallbackResult{
		Kind:    domain.KindEvent,
		Applied: true,
		Registration: &domain.Registration{
			ID:                 "r-1",
			Kind:               domain.KindEvent,
			RegistrationCode:   "EV-ABCD-EFGH",
			RegistrationStatus: status,
			ReturnURLs:         urls,
		},
	}
}

var appURLs = domain.ReturnURLs{
	Success: "https://app.example.edu/registered?tab=events",
	Fail:    "https://app.example.edu/failed",
	Cancel:  "https://app.example.edu/cancelled",
}

func TestPaymentController_HandleCallback_FormPost(t *testing.T) {
	router := &fakeCallbackRouter{result: callbackResult(domain.RegistrationConfirmed, appURLs)}
	c := NewPaymentController(testLogger, router, nil)

	form := url.Values{
		"mer_txnid":  {"TXN01J9Z"},
		"pay_status": {"Successful"},
		"amount":     {"500.00"},
		"currency":   {"BDT"},
		"opt_a":      {"ev-1"},
		"opt_d":      {"event.0011"},
	}
	req := httptest.NewRequest(http.MethodPost, "/payments/callback/success", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetPathValue("outcome", "success")
	rr := httptest.NewRecorder()

	c.HandleCallback(rr, req)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.edu", loc.Host)
	assert.Equal(t, "/registered", loc.Path)
	assert.Equal(t, "events", loc.Query().Get("tab"))
	assert.Equal(t, "EV-ABCD-EFGH", loc.Query().Get("registration_code"))
	assert.Equal(t, "confirmed", loc.Query().Get("status"))
	assert.Equal(t, "r-1", loc.Query().Get("registration_id"))

	require.Equal(t, 1, router.calls)
	assert.Equal(t, domain.OutcomeSuccess, router.lastOutcome)
	assert.Equal(t, "TXN01J9Z", router.lastPayload.TransactionID)
	assert.Equal(t, "500.00", router.lastPayload.Amount)
	assert.Equal(t, "ev-1", router.lastPayload.OptA)
	assert.Equal(t, "event.0011", router.lastPayload.OptD)
}

func TestPaymentController_HandleCallback_RedirectTargets(t *testing.T) {
	tests := []struct {
		name     string
		outcome  string
		status   domain.RegistrationStatus
		urls     domain.ReturnURLs
		wantPath string
	}{
		{"confirmed goes to success", "success", domain.RegistrationConfirmed, appURLs, "/registered"},
		{"failed verification goes to fail", "success", domain.RegistrationCancelled, appURLs, "/failed"},
		{"fail outcome", "fail", domain.RegistrationCancelled, appURLs, "/failed"},
		{"cancel outcome", "cancel", domain.RegistrationCancelled, appURLs, "/cancelled"},
		{"cancel without cancel url falls back to fail", "cancel", domain.RegistrationCancelled, domain.ReturnURLs{Fail: "https://app.example.edu/failed"}, "/failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPaymentController(testLogger, &fakeCallbackRouter{result: callbackResult(tt.status, tt.urls)}, nil)
			req := httptest.NewRequest(http.MethodGet, "/payments/callback/"+tt.outcome+"?mer_txnid=TXN1", nil)
			req.SetPathValue("outcome", tt.outcome)
			rr := httptest.NewRecorder()

			c.HandleCallback(rr, req)

			require.Equal(t, http.StatusSeeOther, rr.Code)
			loc, err := url.Parse(rr.Header().Get("Location"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, loc.Path)
		})
	}
}

func TestPaymentController_HandleCallback_JSON(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		router := &fakeCallbackRouter{result: callbackResult(domain.RegistrationCancelled, appURLs)}
		c := NewPaymentController(testLogger, router, nil)
		body := `{"mer_txnid":"TXN2","pay_status":"Failed","failed_reason":"card declined","opt_d":"club.ff","unknown":"ignored"}`
		req := httptest.NewRequest(http.MethodPost, "/payments/callback/fail", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("Accept", "application/json")
		req.SetPathValue("outcome", "fail")
		rr := httptest.NewRecorder()

		c.HandleCallback(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var got domain.CallbackResult
		require.Nil(t, decodeEnvelope(t, rr, &got))
		assert.True(t, got.Applied)
		assert.Equal(t, domain.RegistrationCancelled, got.Registration.RegistrationStatus)
		assert.Equal(t, domain.OutcomeFail, router.lastOutcome)
		assert.Equal(t, "card declined", router.lastPayload.FailedReason)
		assert.Equal(t, "club.ff", router.lastPayload.OptD)
	})

	t.Run("no return urls", func(t *testing.T) {
		c := NewPaymentController(testLogger, &fakeCallbackRouter{result: callbackResult(domain.RegistrationConfirmed, domain.ReturnURLs{})}, nil)
		req := httptest.NewRequest(http.MethodGet, "/payments/callback/success?mer_txnid=TXN3", nil)
		req.SetPathValue("outcome", "success")
		rr := httptest.NewRecorder()

		c.HandleCallback(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("Location"))
	})
}

func TestPaymentController_HandleCallback_Errors(t *testing.T) {
	tests := []struct {
		name        string
		outcome     string
		contentType string
		body        string
		routeErr    error
		wantStatus  int
		wantCode    string
		wantRouted  bool
	}{
		{name: "unknown outcome", outcome: "refund", wantStatus: http.StatusBadRequest, wantCode: helpers.ErrCodeBadRequest},
		{name: "malformed json", outcome: "success", contentType: "application/json", body: `{"mer_txnid":`, wantStatus: http.StatusBadRequest, wantCode: helpers.ErrCodeBadRequest},
		{name: "unknown transaction", outcome: "success", routeErr: domain.ErrRegistrationNotFound, wantStatus: http.StatusNotFound, wantCode: helpers.ErrCodeNotFound, wantRouted: true},
		{name: "ambiguous", outcome: "success", routeErr: domain.ErrRoutingAmbiguous, wantStatus: http.StatusUnprocessableEntity, wantCode: helpers.ErrCodeRouting, wantRouted: true},
		{name: "in progress", outcome: "success", routeErr: domain.ErrCallbackInProgress, wantStatus: http.StatusConflict, wantCode: helpers.ErrCodeConflict, wantRouted: true},
		{name: "conflict", outcome: "fail", routeErr: domain.ErrTransitionConflict, wantStatus: http.StatusConflict, wantCode: helpers.ErrCodeConflict, wantRouted: true},
		{name: "missing id", outcome: "success", routeErr: domain.ErrInvalidCallback, wantStatus: http.StatusBadRequest, wantCode: helpers.ErrCodeBadRequest, wantRouted: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := &fakeCallbackRouter{err: tt.routeErr, result: callbackResult(domain.RegistrationConfirmed, appURLs)}
			c := NewPaymentController(testLogger, router, nil)
			req := httptest.NewRequest(http.MethodPost, "/payments/callback/"+tt.outcome, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			req.SetPathValue("outcome", tt.outcome)
			rr := httptest.NewRecorder()

			c.HandleCallback(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			apiErr := decodeEnvelope(t, rr, nil)
			require.NotNil(t, apiErr)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantRouted, router.calls == 1)
		})
	}
}

func TestPaymentController_HandleStripeWebhook(t *testing.T) {
	payload := &domain.CallbackPayload{TransactionID: "TXN9", PayStatus: "Successful"}

	tests := []struct {
		name       string
		parser     *fakeWebhookParser
		routeErr   error
		wantStatus int
		wantRouted bool
	}{
		{name: "applied", parser: &fakeWebhookParser{payload: payload, outcome: domain.OutcomeSuccess, ok: true}, wantStatus: http.StatusOK, wantRouted: true},
		{name: "ignored event type", parser: &fakeWebhookParser{ok: false}, wantStatus: http.StatusOK},
		{name: "bad signature", parser: &fakeWebhookParser{err: errors.New("webhook has invalid signature")}, wantStatus: http.StatusBadRequest},
		{name: "unknown transaction acknowledged", parser: &fakeWebhookParser{payload: payload, outcome: domain.OutcomeSuccess, ok: true}, routeErr: domain.ErrRegistrationNotFound, wantStatus: http.StatusOK, wantRouted: true},
		{name: "conflicting state acknowledged", parser: &fakeWebhookParser{payload: payload, outcome: domain.OutcomeSuccess, ok: true}, routeErr: domain.ErrTransitionConflict, wantStatus: http.StatusOK, wantRouted: true},
		{name: "in progress retried", parser: &fakeWebhookParser{payload: payload, outcome: domain.OutcomeSuccess, ok: true}, routeErr: domain.ErrCallbackInProgress, wantStatus: http.StatusConflict, wantRouted: true},
		{name: "gateway down retried", parser: &fakeWebhookParser{payload: payload, outcome: domain.OutcomeSuccess, ok: true}, routeErr: domain.ErrGatewayUnavailable, wantStatus: http.StatusBadGateway, wantRouted: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := &fakeCallbackRouter{err: tt.routeErr, result: callbackResult(domain.RegistrationConfirmed, appURLs)}
			c := NewPaymentController(testLogger, router, tt.parser)
			req := httptest.NewRequest(http.MethodPost, "/payments/stripe/webhook", strings.NewReader(`{"type":"checkout.session.completed"}`))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			rr := httptest.NewRecorder()

			c.HandleStripeWebhook(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "t=1,v1=abc", tt.parser.lastSignature)
			assert.JSONEq(t, `{"type":"checkout.session.completed"}`, string(tt.parser.lastBody))
			assert.Equal(t, tt.wantRouted, router.calls == 1)
			if tt.wantRouted {
				assert.Equal(t, payload, router.lastPayload)
			}
		})
	}
}

func TestPaymentController_HandleStripeWebhook_Disabled(t *testing.T) {
	c := NewPaymentController(testLogger, &fakeCallbackRouter{}, nil)
	rr := httptest.NewRecorder()

	c.HandleStripeWebhook(rr, httptest.NewRequest(http.MethodPost, "/payments/stripe/webhook", strings.NewReader("{}")))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
