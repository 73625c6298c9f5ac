package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"campusclubs/internal/delivery/http/controllers"
	"campusclubs/internal/delivery/http/helpers"
	"campusclubs/internal/delivery/http/middleware"
	"campusclubs/internal/domain"
)

// Pinger reports whether a backing dependency is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps are the collaborators the HTTP surface is built from.
type RouterDeps struct {
	Logger       *slog.Logger
	Verifier     domain.TokenVerifier
	Events       domain.RegistrationService
	Clubs        domain.RegistrationService
	Callbacks    domain.CallbackRouter
	Webhooks     domain.WebhookParser
	Verification domain.VerificationService
	Gatherer     prometheus.Gatherer
	Health       Pinger
}

// NewRouter initializes the HTTP router with all application routes
func NewRouter(deps RouterDeps) *http.ServeMux {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(deps.Verifier, deps.Logger)
	optionalAuth := middleware.OptionalAuth(deps.Verifier, deps.Logger)

	events := controllers.NewRegistrationController(deps.Logger, deps.Events)
	clubs := controllers.NewRegistrationController(deps.Logger, deps.Clubs)
	payments := controllers.NewPaymentController(deps.Logger, deps.Callbacks, deps.Webhooks)
	verification := controllers.NewVerificationController(deps.Logger, deps.Verification)

	// Event registrations
	mux.HandleFunc("POST /events/{eventID}/registrations", optionalAuth(events.CreateRegistration))
	mux.HandleFunc("GET /events/{eventID}/registrations", auth(events.ListRegistrations))
	mux.HandleFunc("POST /events/{eventID}/participants/recount", auth(events.Recount))
	mux.HandleFunc("GET /event-registrations/{registrationID}", auth(events.GetRegistration))
	mux.HandleFunc("POST /event-registrations/{registrationID}/cancel", auth(events.CancelRegistration))
	mux.HandleFunc("POST /event-registrations/{registrationID}/refund", auth(events.RefundRegistration))

	// Club memberships
	mux.HandleFunc("POST /clubs/{clubID}/registrations", optionalAuth(clubs.CreateRegistration))
	mux.HandleFunc("GET /clubs/{clubID}/registrations", auth(clubs.ListRegistrations))
	mux.HandleFunc("POST /clubs/{clubID}/members/recount", auth(clubs.Recount))
	mux.HandleFunc("GET /club-registrations/{registrationID}", auth(clubs.GetRegistration))
	mux.HandleFunc("POST /club-registrations/{registrationID}/cancel", auth(clubs.CancelRegistration))
	mux.HandleFunc("POST /club-registrations/{registrationID}/refund", auth(clubs.RefundRegistration))

	// Check-in
	mux.HandleFunc("GET /registrations/verify/{code}", verification.VerifyCode)

	// Payments
	mux.HandleFunc("GET /payments/callback/{outcome}", payments.HandleCallback)
	mux.HandleFunc("POST /payments/callback/{outcome}", payments.HandleCallback)
	if deps.Webhooks != nil {
		mux.HandleFunc("POST /payments/stripe/webhook", payments.HandleStripeWebhook)
	}

	// Ops
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", healthz(deps.Health))

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}

func healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				helpers.WriteJSONError(w, http.StatusServiceUnavailable, helpers.ErrCodeInternalError, "database unavailable")
				return
			}
		}
		helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
