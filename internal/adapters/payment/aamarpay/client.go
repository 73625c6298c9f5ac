package aamarpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"campusclubs/internal/domain"
)

const (
	initiatePath = "/jsonpost.php"
	verifyPath   = "/api/v1/trxcheck/request.php"

	statusSuccessful = "Successful"
	maxResponseBytes = 1 << 20
)

// Config holds the merchant credentials and endpoint of an aamarPay store.
type Config struct {
	BaseURL      string
	StoreID      string
	SignatureKey string
	Timeout      time.Duration
}

type client struct {
	http   *http.Client
	config Config
	logger *slog.Logger
}

// NewClient returns a PaymentGateway for aamarPay's hosted checkout. httpClient may be nil.
func NewClient(config Config, httpClient *http.Client, logger *slog.Logger) (domain.PaymentGateway, error) {
	if config.BaseURL == "" || config.StoreID == "" || config.SignatureKey == "" {
		return nil, errors.New("aamarpay: base url, store id and signature key are required")
	}
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("aamarpay: invalid base url: %w", err)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &client{http: httpClient, config: config, logger: logger.With("gateway", "aamarpay")}, nil
}

func (c *client) Name() string { return "aamarpay" }

type initiateRequest struct {
	StoreID      string `json:"store_id"`
	SignatureKey string `json:"signature_key"`
	TranID       string `json:"tran_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Desc         string `json:"desc"`
	CusName      string `json:"cus_name"`
	CusEmail     string `json:"cus_email"`
	CusPhone     string `json:"cus_phone"`
	SuccessURL   string `json:"success_url"`
	FailURL      string `json:"fail_url"`
	CancelURL    string `json:"cancel_url"`
	OptA         string `json:"opt_a,omitempty"`
	OptB         string `json:"opt_b,omitempty"`
	OptC         string `json:"opt_c,omitempty"`
	OptD         string `json:"opt_d,omitempty"`
	Type         string `json:"type"`
}

type initiateResponse struct {
	Result     flexString `json:"result"`
	PaymentURL string     `json:"payment_url"`
}

func (c *client) Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentSession, error) {
	body, err := json.Marshal(initiateRequest{
		StoreID:      c.config.StoreID,
		SignatureKey: c.config.SignatureKey,
		TranID:       req.TransactionID,
		Amount:       FormatAmount(req.Amount),
		Currency:     req.Currency,
		Desc:         req.Description,
		CusName:      req.Customer.Name,
		CusEmail:     req.Customer.Email,
		CusPhone:     req.Customer.Phone,
		SuccessURL:   req.SuccessURL,
		FailURL:      req.FailURL,
		CancelURL:    req.CancelURL,
		OptA:         req.PassThrough.OptA,
		OptB:         req.PassThrough.OptB,
		OptC:         req.PassThrough.OptC,
		OptD:         req.PassThrough.OptD,
		Type:         "json",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode aamarpay request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+initiatePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	raw, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	var resp initiateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode aamarpay initiate response: %v", domain.ErrGatewayUnavailable, err)
	}
	if !strings.EqualFold(string(resp.Result), "true") || resp.PaymentURL == "" {
		c.logger.ErrorContext(ctx, "payment initiation rejected", "transaction_id", req.TransactionID, "response", truncate(raw))
		return nil, fmt.Errorf("%w: aamarpay rejected payment initiation", domain.ErrGatewayUnavailable)
	}
	return &domain.PaymentSession{URL: resp.PaymentURL, TransactionID: req.TransactionID, Raw: raw}, nil
}

type verifyResponse struct {
	MerTxnID     string     `json:"mer_txnid"`
	PayStatus    string     `json:"pay_status"`
	StatusCode   flexString `json:"status_code"`
	Amount       flexString `json:"amount"`
	Currency     string     `json:"currency"`
	CurrencyMerc string     `json:"currency_merchant"`
	Reason       string     `json:"reason"`
	ErrorMsg     string     `json:"error"`
}

// Verify asks aamarPay for the authoritative status of transactionID.
func (c *client) Verify(ctx context.Context, transactionID string) (*domain.Verification, error) {
	q := url.Values{}
	q.Set("request_id", transactionID)
	q.Set("store_id", c.config.StoreID)
	q.Set("signature_key", c.config.SignatureKey)
	q.Set("type", "json")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+verifyPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	raw, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	var resp verifyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode aamarpay verify response: %v", domain.ErrGatewayUnavailable, err)
	}

	v := &domain.Verification{
		TransactionID: resp.MerTxnID,
		Status:        resp.PayStatus,
		Paid:          strings.EqualFold(resp.PayStatus, statusSuccessful),
		Currency:      resp.Currency,
		Raw:           raw,
	}
	if v.Currency == "" {
		v.Currency = resp.CurrencyMerc
	}
	if resp.Amount != "" {
		amount, err := ParseAmount(string(resp.Amount))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
		}
		v.Amount = amount
	}
	if !v.Paid {
		v.FailureReason = firstNonEmpty(resp.Reason, resp.ErrorMsg)
		if v.FailureReason == "" && v.Status == "" {
			v.FailureReason = "transaction not found at gateway"
		}
	}
	return v, nil
}

func (c *client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrGatewayUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: aamarpay returned status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}
	return raw, nil
}

// FormatAmount renders minor units as the decimal string aamarPay expects ("500.00").
func FormatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

// ParseAmount converts a decimal amount such as "500", "500.5" or "500.00" into minor units.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || len(frac) > 2 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return w*100 + f, nil
}

// flexString accepts a JSON string, number or boolean; aamarPay is not consistent about which.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
