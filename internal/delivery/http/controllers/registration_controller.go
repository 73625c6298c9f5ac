package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"campusclubs/internal/delivery/http/helpers"
	"campusclubs/internal/delivery/http/middleware"
	"campusclubs/internal/domain"

	"github.com/google/uuid"
)

// CreateRegistrationRequest is the request body for POST /events/{eventID}/registrations and
// POST /clubs/{clubID}/registrations. Authenticated callers register themselves and omit public_info.
type CreateRegistrationRequest struct {
	PublicInfo   *domain.PublicInfo `json:"public_info,omitempty"`
	MemberUserID string             `json:"member_user_id,omitempty"`
	SuccessURL   string             `json:"success_url,omitempty"`
	FailURL      string             `json:"fail_url,omitempty"`
	CancelURL    string             `json:"cancel_url,omitempty"`
}

// Validate implements Validator. Subject exclusivity is checked by the service, which knows the requester.
func (c CreateRegistrationRequest) Validate() []string {
	var errs []string
	if c.PublicInfo != nil {
		errs = append(errs, c.PublicInfo.Validate()...)
	}
	if id := strings.TrimSpace(c.MemberUserID); id != "" {
		if _, err := uuid.Parse(id); err != nil {
			errs = append(errs, "member_user_id must be a UUID")
		}
	}
	for _, f := range []struct{ name, raw string }{
		{"success_url", c.SuccessURL},
		{"fail_url", c.FailURL},
		{"cancel_url", c.CancelURL},
	} {
		if f.raw != "" && !isAbsoluteURL(f.raw) {
			errs = append(errs, f.name+" must be an absolute http(s) URL")
		}
	}
	return errs
}

// pathID reads a UUID path value in canonical form. A malformed ID names nothing, so it is answered
// with 404 like an unknown one.
func pathID(w http.ResponseWriter, r *http.Request, name, notFound string) (string, bool) {
	raw := r.PathValue(name)
	if raw == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing "+name)
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, notFound)
		return "", false
	}
	return id.String(), true
}

// targetID reads the event or club ID from the path.
func (c *RegistrationController) targetID(w http.ResponseWriter, r *http.Request) (string, bool) {
	return pathID(w, r, c.TargetParam, string(c.Service.Kind())+" not found")
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// CreateRegistrationSuccessResponse is the success response envelope for registration creation (201).
type CreateRegistrationSuccessResponse struct {
	Data  *domain.RegistrationResult `json:"data"`
	Error *helpers.APIError          `json:"error"`
}

// RegistrationSuccessResponse wraps a single registration (200).
type RegistrationSuccessResponse struct {
	Data  *domain.Registration `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

// ListRegistrationsResponse is the data payload for a paginated registration list.
type ListRegistrationsResponse struct {
	Items      []*domain.Registration `json:"items"`
	Pagination helpers.PaginationMeta `json:"pagination"`
}

// ListRegistrationsSuccessResponse is the success response envelope for registration lists (200).
type ListRegistrationsSuccessResponse struct {
	Data  ListRegistrationsResponse `json:"data"`
	Error *helpers.APIError         `json:"error"`
}

// RecountResponse reports the counter value after a recount.
type RecountResponse struct {
	TargetID string `json:"target_id"`
	Count    int    `json:"count"`
}

// RecountSuccessResponse is the success response envelope for recounts (200).
type RecountSuccessResponse struct {
	Data  RecountResponse   `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// RegistrationController serves one registration domain. TargetParam is the path value naming the
// event or club ("eventID" or "clubID").
type RegistrationController struct {
	Logger      *slog.Logger
	Service     domain.RegistrationService
	TargetParam string
}

func NewRegistrationController(logger *slog.Logger, svc domain.RegistrationService) *RegistrationController {
	param := "eventID"
	if svc.Kind() == domain.KindClub {
		param = "clubID"
	}
	return &RegistrationController{
		Logger:      logger,
		Service:     svc,
		TargetParam: param,
	}
}

// CreateRegistration godoc
// @Summary Register for an event or join a club
// @Description Opens a registration for the authenticated user, or for a public registrant described by public_info. Paid targets return a payment_url to redirect the payer to. A club account may register one of its members through member_user_id without a fee.
// @Tags registrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param registration body CreateRegistrationRequest true "Registrant and return URLs"
// @Success 201 {object} controllers.CreateRegistrationSuccessResponse "data contains the registration and payment_url"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Failure 502 {object} helpers.APIResponse "error.code: gateway_error"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/registrations [post]
// @Router /clubs/{clubID}/registrations [post]
func (c *RegistrationController) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	targetID, ok := c.targetID(w, r)
	if !ok {
		return
	}
	var req CreateRegistrationRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	result, err := c.Service.CreateRegistration(r.Context(), domain.CreateRegistrationInput{
		TargetID:     targetID,
		Requester:    middleware.RequesterFromContext(r.Context()),
		PublicInfo:   req.PublicInfo,
		MemberUserID: strings.TrimSpace(req.MemberUserID),
		ReturnURLs: domain.ReturnURLs{
			Success: req.SuccessURL,
			Fail:    req.FailURL,
			Cancel:  req.CancelURL,
		},
	})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, result)
}

// GetRegistration godoc
// @Summary Get a registration
// @Description Returns the registration to its registrant or to the owner of its event or club.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param registrationID path string true "Registration ID"
// @Success 200 {object} controllers.RegistrationSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /event-registrations/{registrationID} [get]
// @Router /club-registrations/{registrationID} [get]
func (c *RegistrationController) GetRegistration(w http.ResponseWriter, r *http.Request) {
	c.withRegistration(w, r, http.StatusOK, c.Service.Get)
}

// CancelRegistration godoc
// @Summary Cancel a registration
// @Description Cancels a registration. Allowed for the registrant and the target owner. Cancelling a confirmed registration frees its seat.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param registrationID path string true "Registration ID"
// @Success 200 {object} controllers.RegistrationSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /event-registrations/{registrationID}/cancel [post]
// @Router /club-registrations/{registrationID}/cancel [post]
func (c *RegistrationController) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	c.withRegistration(w, r, http.StatusOK, c.Service.Cancel)
}

// RefundRegistration godoc
// @Summary Mark a registration refunded
// @Description Records that a completed payment was refunded. Target owner only. The money movement happens outside this service.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param registrationID path string true "Registration ID"
// @Success 200 {object} controllers.RegistrationSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /event-registrations/{registrationID}/refund [post]
// @Router /club-registrations/{registrationID}/refund [post]
func (c *RegistrationController) RefundRegistration(w http.ResponseWriter, r *http.Request) {
	c.withRegistration(w, r, http.StatusOK, c.Service.Refund)
}

func (c *RegistrationController) withRegistration(w http.ResponseWriter, r *http.Request, status int,
	op func(ctx context.Context, id string, actor *domain.Requester) (*domain.Registration, error)) {
	registrationID, ok := pathID(w, r, "registrationID", "registration not found")
	if !ok {
		return
	}
	actor := middleware.RequesterFromContext(r.Context())
	if actor == nil {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	reg, err := op(r.Context(), registrationID, actor)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, status, reg)
}

// ListRegistrations godoc
// @Summary List registrations of an event or club
// @Description Paginated list of registrations for a target, newest first. Target owner only.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} controllers.ListRegistrationsSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/registrations [get]
// @Router /clubs/{clubID}/registrations [get]
func (c *RegistrationController) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	targetID, ok := c.targetID(w, r)
	if !ok {
		return
	}
	actor := middleware.RequesterFromContext(r.Context())
	if actor == nil {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	params := helpers.ParsePagination(r)
	items, total, err := c.Service.ListByTarget(r.Context(), targetID, actor, params)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if items == nil {
		items = []*domain.Registration{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, ListRegistrationsResponse{
		Items:      items,
		Pagination: helpers.NewPaginationMeta(params.Page, params.PageSize, total),
	})
}

// Recount godoc
// @Summary Recount participants or members
// @Description Resets the target's participant or member counter to the number of confirmed registrations. Target owner only.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.RecountSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/participants/recount [post]
// @Router /clubs/{clubID}/members/recount [post]
func (c *RegistrationController) Recount(w http.ResponseWriter, r *http.Request) {
	targetID, ok := c.targetID(w, r)
	if !ok {
		return
	}
	actor := middleware.RequesterFromContext(r.Context())
	if actor == nil {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	count, err := c.Service.Recount(r.Context(), targetID, actor)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, RecountResponse{TargetID: targetID, Count: count})
}
