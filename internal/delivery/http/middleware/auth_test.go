package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"campusclubs/internal/delivery/http/helpers"
	"campusclubs/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokenVerifier implements domain.TokenVerifier for tests.
type fakeTokenVerifier struct {
	requester *domain.Requester
	err       error
}

func (f *fakeTokenVerifier) Verify(_ string) (*domain.Requester, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.requester, nil
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

func TestRequireAuth(t *testing.T) {
	student := &domain.Requester{UserID: "user-123", Roles: []string{domain.RoleStudent}}

	tests := []struct {
		name        string
		authHeader  string
		verifier    domain.TokenVerifier
		wantStatus  int
		wantMessage string
		nextCalled  bool
	}{
		{
			name:       "valid token sets context and calls next",
			authHeader: "Bearer valid-token",
			verifier:   &fakeTokenVerifier{requester: student},
			wantStatus: http.StatusOK,
			nextCalled: true,
		},
		{
			name:        "missing authorization header",
			verifier:    &fakeTokenVerifier{requester: student},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "missing authorization header",
		},
		{
			name:        "invalid authorization format no Bearer prefix",
			authHeader:  "Basic abc",
			verifier:    &fakeTokenVerifier{requester: student},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "invalid authorization format",
		},
		{
			name:        "empty token after Bearer",
			authHeader:  "Bearer ",
			verifier:    &fakeTokenVerifier{requester: student},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "missing token",
		},
		{
			name:        "verifier returns error",
			authHeader:  "Bearer bad-token",
			verifier:    &fakeTokenVerifier{err: errors.New("token is expired")},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "invalid or expired token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled := false
			var captured *domain.Requester
			next := func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				captured = RequesterFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}
			handler := RequireAuth(tt.verifier, testLogger)(next)

			req := httptest.NewRequest(http.MethodGet, "http://test/event-registrations/r-1", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()

			handler(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code, "status code")
			assert.Equal(t, tt.nextCalled, nextCalled, "next handler called")
			if tt.nextCalled {
				assert.Equal(t, student, captured, "requester in context")
				return
			}
			var envelope helpers.APIResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&envelope))
			require.NotNil(t, envelope.Error)
			assert.Equal(t, helpers.ErrCodeUnauthorized, envelope.Error.Code)
			assert.Equal(t, tt.wantMessage, envelope.Error.Message)
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	club := &domain.Requester{UserID: "club-owner", Roles: []string{domain.RoleClub}}

	tests := []struct {
		name          string
		authHeader    string
		verifier      domain.TokenVerifier
		wantStatus    int
		wantRequester *domain.Requester
	}{
		{name: "anonymous passes through", verifier: &fakeTokenVerifier{requester: club}, wantStatus: http.StatusOK},
		{name: "valid token sets requester", authHeader: "Bearer ok", verifier: &fakeTokenVerifier{requester: club}, wantStatus: http.StatusOK, wantRequester: club},
		{name: "invalid token rejected", authHeader: "Bearer bad", verifier: &fakeTokenVerifier{err: errors.New("bad")}, wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured *domain.Requester
			handler := OptionalAuth(tt.verifier, testLogger)(func(w http.ResponseWriter, r *http.Request) {
				captured = RequesterFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodPost, "http://test/events/ev-1/registrations", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			handler(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantRequester, captured)
		})
	}
}

func TestRequesterFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://test/", nil)
	assert.Nil(t, RequesterFromContext(req.Context()))
}
