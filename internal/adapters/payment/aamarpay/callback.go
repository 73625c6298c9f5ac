package aamarpay

import (
	"net/url"
	"strings"

	"campusclubs/internal/domain"
)

// CallbackFromForm reads the fields aamarPay posts to the success, fail and cancel URLs.
func CallbackFromForm(form url.Values) *domain.CallbackPayload {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(form.Get(k)); v != "" {
				return v
			}
		}
		return ""
	}
	return &domain.CallbackPayload{
		TransactionID: get("mer_txnid", "tran_id"),
		PayStatus:     get("pay_status"),
		Amount:        get("amount", "amount_original"),
		Currency:      get("currency", "currency_merchant"),
		FailedReason:  get("failed_reason", "reason", "pg_error_code_details"),
		PassThrough: domain.PassThrough{
			OptA: form.Get("opt_a"),
			OptB: form.Get("opt_b"),
			OptC: form.Get("opt_c"),
			OptD: form.Get("opt_d"),
		},
	}
}
