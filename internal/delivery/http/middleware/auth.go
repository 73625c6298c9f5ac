package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	h "campusclubs/internal/delivery/http/helpers"
	"campusclubs/internal/domain"
)

type contextKey string

const requesterKey contextKey = "requester"

// SetRequester returns a context carrying the authenticated requester.
func SetRequester(ctx context.Context, requester *domain.Requester) context.Context {
	return context.WithValue(ctx, requesterKey, requester)
}

// RequesterFromContext returns the authenticated requester, or nil for anonymous requests.
func RequesterFromContext(ctx context.Context) *domain.Requester {
	r, _ := ctx.Value(requesterKey).(*domain.Requester)
	return r
}

// bearerToken extracts the token from the Authorization header. An empty message means success.
func bearerToken(r *http.Request) (string, string) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", "missing authorization header"
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", "invalid authorization format"
	}
	token := strings.TrimSpace(auth[len(prefix):])
	if token == "" {
		return "", "missing token"
	}
	return token, ""
}

// RequireAuth returns a wrapper that validates the Bearer token and sets the requester in the request context.
// If the token is missing or invalid, it responds with 401 and does not call next.
func RequireAuth(verifier domain.TokenVerifier, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, msg := bearerToken(r)
			if msg != "" {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, msg)
				return
			}
			requester, err := verifier.Verify(token)
			if err != nil {
				logger.DebugContext(r.Context(), "token rejected", "path", r.URL.Path, "err", err)
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "invalid or expired token")
				return
			}
			next(w, r.WithContext(SetRequester(r.Context(), requester)))
		}
	}
}

// OptionalAuth sets the requester when a valid Bearer token is present and lets anonymous requests
// through. A token that is present but invalid is still rejected with 401.
func OptionalAuth(verifier domain.TokenVerifier, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next(w, r)
				return
			}
			RequireAuth(verifier, logger)(next)(w, r)
		}
	}
}
