package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"campusclubs/internal/domain"
)

// Creation modes.
const (
	ModePaid = "paid"
	ModeFree = "free"
)

// Callback results.
const (
	ResultApplied = "applied"
	ResultNoop    = "noop"
	ResultError   = "error"
)

// Routing methods.
const (
	RouteDiscriminator = "discriminator"
	RouteProbe         = "probe"
)

// Registrations holds the registration and payment callback counters.
// A nil *Registrations is valid and records nothing.
type Registrations struct {
	created   *prometheus.CounterVec
	callbacks *prometheus.CounterVec
	routes    *prometheus.CounterVec
	errors    *prometheus.CounterVec
}

// New registers the collectors with registerer (prometheus.DefaultRegisterer when nil).
func New(registerer prometheus.Registerer) *Registrations {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "club_registrations_created_total",
		Help: "Registrations created by domain and payment mode.",
	}, []string{"kind", "mode"})
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "club_payment_callbacks_total",
		Help: "Payment callbacks processed by domain, outcome and result.",
	}, []string{"kind", "outcome", "result"})
	routes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "club_callback_routes_total",
		Help: "Callback routing decisions by resolution method.",
	}, []string{"method"})
	callbackErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "club_callback_errors_total",
		Help: "Callback failures by low-cardinality reason.",
	}, []string{"reason"})

	registerer.MustRegister(created, callbacks, routes, callbackErrors)

	return &Registrations{
		created:   created,
		callbacks: callbacks,
		routes:    routes,
		errors:    callbackErrors,
	}
}

func (m *Registrations) RegistrationCreated(kind domain.Kind, mode string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(string(kind), mode).Inc()
}

func (m *Registrations) CallbackProcessed(kind domain.Kind, outcome domain.CallbackOutcome, result string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(string(kind), string(outcome), result).Inc()
}

func (m *Registrations) CallbackRouted(method string) {
	if m == nil {
		return
	}
	m.routes.WithLabelValues(method).Inc()
}

// CallbackFailed counts a callback that could not be processed, classified by ClassifyCallbackError.
func (m *Registrations) CallbackFailed(err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(ClassifyCallbackError(err)).Inc()
}

// ClassifyCallbackError maps a callback error to a metric label.
func ClassifyCallbackError(err error) string {
	switch {
	case errors.Is(err, domain.ErrRegistrationNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrRoutingAmbiguous):
		return "routing_ambiguous"
	case errors.Is(err, domain.ErrTransitionConflict):
		return "transition_conflict"
	case errors.Is(err, domain.ErrCallbackInProgress):
		return "in_progress"
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return "gateway"
	case errors.Is(err, domain.ErrInvalidCallback):
		return "invalid"
	}
	return "unknown"
}
