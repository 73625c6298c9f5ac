package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := fromEnv("development", envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.MigrateOnStart)
	assert.Equal(t, 30*time.Second, cfg.ContextTimeout)
	assert.Equal(t, time.Minute, cfg.CallbackLockTTL)
	assert.Equal(t, 30*time.Minute, cfg.SeatHold)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, ProviderAamarpay, cfg.Payment.Provider)
	assert.Equal(t, "BDT", cfg.Payment.Currency)
	assert.Equal(t, "https://sandbox.aamarpay.com", cfg.Payment.AamarpayBaseURL)
	assert.Equal(t, "noop", cfg.Email.Provider)
	assert.Equal(t, "http://localhost:8080", cfg.PublicBaseURL)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := fromEnv("staging", envOf(map[string]string{
		"PORT":                     "9090",
		"MIGRATE_ON_START":         "false",
		"CONTEXT_TIMEOUT":          "5s",
		"CORS_ALLOWED_ORIGINS":     "https://a.example.edu, https://b.example.edu ,",
		"PUBLIC_BASE_URL":          "https://api.example.edu/",
		"PAYMENT_PROVIDER":         "Stripe",
		"PAYMENT_CURRENCY":         "usd",
		"STRIPE_SECRET_KEY":        "sk_test_1",
		"CALLBACK_LOCK_TTL":        "90s",
		"SEAT_HOLD":                "10m",
		"EMAIL_PROVIDER":           "SES",
		"SES_INSECURE_SKIP_VERIFY": "true",
		"JWT_LEEWAY":               "1m",
	}))
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "9090", cfg.Port)
	assert.False(t, cfg.MigrateOnStart)
	assert.Equal(t, 5*time.Second, cfg.ContextTimeout)
	assert.Equal(t, []string{"https://a.example.edu", "https://b.example.edu"}, cfg.AllowedOrigins)
	assert.Equal(t, "https://api.example.edu", cfg.PublicBaseURL)
	assert.Equal(t, ProviderStripe, cfg.Payment.Provider)
	assert.Equal(t, "USD", cfg.Payment.Currency)
	assert.Equal(t, 90*time.Second, cfg.CallbackLockTTL)
	assert.Equal(t, 10*time.Minute, cfg.SeatHold)
	assert.Equal(t, "ses", cfg.Email.Provider)
	assert.True(t, cfg.Email.SESInsecureSkipVerify)
	assert.Equal(t, time.Minute, cfg.JWTLeeway)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		values  map[string]string
		wantErr string
	}{
		{name: "bad duration", values: map[string]string{"CONTEXT_TIMEOUT": "soon"}, wantErr: "CONTEXT_TIMEOUT"},
		{name: "negative duration", values: map[string]string{"AAMARPAY_TIMEOUT": "-1s"}, wantErr: "AAMARPAY_TIMEOUT"},
		{name: "bad boolean", values: map[string]string{"MIGRATE_ON_START": "sometimes"}, wantErr: "MIGRATE_ON_START"},
		{name: "unknown provider", values: map[string]string{"PAYMENT_PROVIDER": "paypal"}, wantErr: "PAYMENT_PROVIDER"},
		{name: "production secrets", env: "production", wantErr: "JWT_SECRET is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := tt.env
			if env == "" {
				env = "development"
			}
			_, err := fromEnv(env, envOf(tt.values))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
