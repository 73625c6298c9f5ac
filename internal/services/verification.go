package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campusclubs/internal/domain"
)

type verificationService struct {
	store          domain.Store
	contextTimeout time.Duration
}

// NewVerificationService returns the check-in service for registration codes.
func NewVerificationService(store domain.Store, timeout time.Duration) domain.VerificationService {
	return &verificationService{store: store, contextTimeout: timeout}
}

// VerifyCode finds the registration behind code in the store its prefix names, or in both stores
// for an unrecognized prefix. Only confirmed registrations are valid.
func (s *verificationService) VerifyCode(ctx context.Context, code string) (*domain.VerificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: registration code is required", domain.ErrInvalidInput)
	}

	kinds := []domain.Kind{domain.KindEvent, domain.KindClub}
	if kind, ok := kindFromCode(code); ok {
		kinds = []domain.Kind{kind}
	}

	for _, kind := range kinds {
		reg, err := s.store.Registrations(kind).GetByCode(ctx, code)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get registration by code: %w", err)
		}

		result := &domain.VerificationResult{
			IsValid:      reg.RegistrationStatus == domain.RegistrationConfirmed,
			Kind:         kind,
			Registration: reg,
		}
		switch kind {
		case domain.KindEvent:
			if result.Event, err = s.store.Events().GetByID(ctx, reg.TargetID); err != nil {
				return nil, fmt.Errorf("get event: %w", err)
			}
		case domain.KindClub:
			if result.Club, err = s.store.Clubs().GetByID(ctx, reg.TargetID); err != nil {
				return nil, fmt.Errorf("get club: %w", err)
			}
		}
		return result, nil
	}
	return nil, domain.ErrNotFound
}
