package controllers

import (
	"context"
	"io"
	"log/slog"

	"campusclubs/internal/delivery/http/middleware"
	"campusclubs/internal/domain"
)

// testLogger is a no-op logger for controller tests so we don't assert on log output.
var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

var (
	studentRequester = &domain.Requester{UserID: "user-1", Roles: []string{domain.RoleStudent}}
	clubRequester    = &domain.Requester{UserID: "club-owner", Roles: []string{domain.RoleClub}}
)

const (
	testEventID        = "0b8f6c52-7c1e-4c8e-9a64-2f5d1e3a9b10"
	testClubID         = "5a2d9e47-1f3b-4c6a-8e2d-7b9c0f1a3e54"
	testRegistrationID = "c3e1a7f2-9d4b-4b8e-a1c6-5e2f8d0b7a93"
	testMemberID       = "9e7b3c1d-2a5f-4d8e-b6c4-0f1e2d3c4b5a"
)

func withRequester(ctx context.Context, r *domain.Requester) context.Context {
	return middleware.SetRequester(ctx, r)
}

// fakeRegistrationService implements domain.RegistrationService for handler tests.
type fakeRegistrationService struct {
	kind domain.Kind

	createResult *domain.RegistrationResult
	createErr    error
	lastCreate   domain.CreateRegistrationInput

	registration  *domain.Registration
	getErr        error
	cancelErr     error
	refundErr     error
	lastID        string
	lastActor     *domain.Requester
	lastOperation string

	listResult []*domain.Registration
	listTotal  int
	listErr    error
	lastTarget string
	lastParams domain.PaginationParams

	recountResult int
	recountErr    error
}

func (f *fakeRegistrationService) Kind() domain.Kind { return f.kind }

func (f *fakeRegistrationService) CreateRegistration(_ context.Context, in domain.CreateRegistrationInput) (*domain.RegistrationResult, error) {
	f.lastCreate = in
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createResult, nil
}

func (f *fakeRegistrationService) ProcessSuccess(context.Context, *domain.Callback) (*domain.CallbackResult, error) {
	return nil, nil
}

func (f *fakeRegistrationService) ProcessFailure(context.Context, *domain.Callback) (*domain.CallbackResult, error) {
	return nil, nil
}

func (f *fakeRegistrationService) single(op, id string, actor *domain.Requester, err error) (*domain.Registration, error) {
	f.lastOperation, f.lastID, f.lastActor = op, id, actor
	if err != nil {
		return nil, err
	}
	return f.registration, nil
}

func (f *fakeRegistrationService) Get(_ context.Context, id string, actor *domain.Requester) (*domain.Registration, error) {
	return f.single("get", id, actor, f.getErr)
}

func (f *fakeRegistrationService) Cancel(_ context.Context, id string, actor *domain.Requester) (*domain.Registration, error) {
	return f.single("cancel", id, actor, f.cancelErr)
}

func (f *fakeRegistrationService) Refund(_ context.Context, id string, actor *domain.Requester) (*domain.Registration, error) {
	return f.single("refund", id, actor, f.refundErr)
}

func (f *fakeRegistrationService) ListByTarget(_ context.Context, targetID string, actor *domain.Requester, params domain.PaginationParams) ([]*domain.Registration, int, error) {
	f.lastTarget, f.lastActor, f.lastParams = targetID, actor, params
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	return f.listResult, f.listTotal, nil
}

func (f *fakeRegistrationService) Recount(_ context.Context, targetID string, actor *domain.Requester) (int, error) {
	f.lastTarget, f.lastActor = targetID, actor
	if f.recountErr != nil {
		return 0, f.recountErr
	}
	return f.recountResult, nil
}

// fakeCallbackRouter implements domain.CallbackRouter.
type fakeCallbackRouter struct {
	result      *domain.CallbackResult
	err         error
	calls       int
	lastPayload *domain.CallbackPayload
	lastOutcome domain.CallbackOutcome
}

func (f *fakeCallbackRouter) Route(_ context.Context, payload *domain.CallbackPayload, outcome domain.CallbackOutcome) (*domain.CallbackResult, error) {
	f.calls++
	f.lastPayload, f.lastOutcome = payload, outcome
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeWebhookParser implements domain.WebhookParser.
type fakeWebhookParser struct {
	payload       *domain.CallbackPayload
	outcome       domain.CallbackOutcome
	ok            bool
	err           error
	lastBody      []byte
	lastSignature string
}

func (f *fakeWebhookParser) ParseWebhook(body []byte, signature string) (*domain.CallbackPayload, domain.CallbackOutcome, bool, error) {
	f.lastBody, f.lastSignature = body, signature
	if f.err != nil {
		return nil, "", false, f.err
	}
	return f.payload, f.outcome, f.ok, nil
}

// fakeVerificationService implements domain.VerificationService.
type fakeVerificationService struct {
	result   *domain.VerificationResult
	err      error
	lastCode string
}

func (f *fakeVerificationService) VerifyCode(_ context.Context, code string) (*domain.VerificationResult, error) {
	f.lastCode = code
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
