package controllers

import (
	"log/slog"
	"net/http"

	"campusclubs/internal/delivery/http/helpers"
	"campusclubs/internal/domain"
)

// VerificationSuccessResponse is the success response envelope for GET /registrations/verify/{code} (200).
type VerificationSuccessResponse struct {
	Data  *domain.VerificationResult `json:"data"`
	Error *helpers.APIError          `json:"error"`
}

type VerificationController struct {
	Logger  *slog.Logger
	Service domain.VerificationService
}

func NewVerificationController(logger *slog.Logger, svc domain.VerificationService) *VerificationController {
	return &VerificationController{Logger: logger, Service: svc}
}

// VerifyCode godoc
// @Summary Verify a registration code
// @Description Check-in lookup for an EV- or CL- registration code. is_valid is true only for confirmed registrations.
// @Tags verification
// @Produce json
// @Param code path string true "Registration code"
// @Success 200 {object} controllers.VerificationSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /registrations/verify/{code} [get]
func (c *VerificationController) VerifyCode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing code")
		return
	}
	result, err := c.Service.VerifyCode(r.Context(), code)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}
