package helpers

import (
	"errors"
	"log/slog"
	"net/http"

	"campusclubs/internal/domain"
)

// WriteServiceError maps a service error onto the response envelope. Unexpected errors are logged
// and reported as internal_error without their message.
func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := http.StatusInternalServerError, ErrCodeInternalError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTargetMissing),
		errors.Is(err, domain.ErrRegistrationNotFound), errors.Is(err, domain.ErrUserNotFound):
		status, code = http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, domain.ErrRegistrationClosed), errors.Is(err, domain.ErrTargetFull),
		errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidSubject),
		errors.Is(err, domain.ErrInvalidCallback):
		status, code = http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, domain.ErrDuplicateRegistration), errors.Is(err, domain.ErrTransitionConflict),
		errors.Is(err, domain.ErrCallbackInProgress), errors.Is(err, domain.ErrStaleTransition):
		status, code = http.StatusConflict, ErrCodeConflict
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, domain.ErrRoutingAmbiguous):
		status, code = http.StatusUnprocessableEntity, ErrCodeRouting
	case errors.Is(err, domain.ErrGatewayUnavailable):
		status, code = http.StatusBadGateway, ErrCodeGateway
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	WriteJSONError(w, status, code, message)
}
