package services

import (
	"context"
	"encoding/json"
	"fmt"

	"campusclubs/internal/domain"
)

// sendConfirmation emails the registrant once per registration. It runs after commit and never fails
// the caller; t may be nil, in which case the target is loaded. A failed send gives the claim back so
// the next delivery of the success callback retries it.
func (s *registrationService) sendConfirmation(ctx context.Context, reg *domain.Registration, t *registrationTarget) {
	if s.email == nil {
		return
	}
	log := s.logger.With("registration_id", reg.ID)
	repo := s.store.Registrations(s.Kind())

	claimed, err := repo.ClaimEmail(ctx, reg.ID)
	if err != nil {
		log.WarnContext(ctx, "claim confirmation email failed", "err", err)
		return
	}
	if !claimed {
		return
	}
	data, err := s.emailData(ctx, reg, t)
	if err == nil {
		err = s.email.SendRegistrationConfirmed(ctx, data)
	}
	if err == nil {
		return
	}
	log.WarnContext(ctx, "send confirmation email failed", "err", err)
	if rerr := repo.ReleaseEmail(context.WithoutCancel(ctx), reg.ID); rerr != nil {
		log.WarnContext(ctx, "release confirmation email claim failed", "err", rerr)
	}
}

// sendFailure emails the registrant that the payment did not go through.
func (s *registrationService) sendFailure(ctx context.Context, reg *domain.Registration, reason string) {
	if s.email == nil {
		return
	}
	log := s.logger.With("registration_id", reg.ID)

	data, err := s.emailData(ctx, reg, nil)
	if err != nil {
		log.WarnContext(ctx, "build failure email failed", "err", err)
		return
	}
	data.Reason = reason
	if err := s.email.SendRegistrationFailed(ctx, data); err != nil {
		log.WarnContext(ctx, "send failure email failed", "err", err)
	}
}

func (s *registrationService) emailData(ctx context.Context, reg *domain.Registration, t *registrationTarget) (*domain.RegistrationEmailData, error) {
	if t == nil {
		var err error
		if t, err = s.policy.get(ctx, s.store, reg.TargetID, false); err != nil {
			return nil, fmt.Errorf("get target: %w", err)
		}
	}
	data := &domain.RegistrationEmailData{
		Kind:             reg.Kind,
		TargetName:       t.Name,
		RegistrationCode: reg.RegistrationCode,
		Amount:           formatAmount(reg.Amount, reg.Currency),
	}
	if reg.PublicInfo != nil {
		data.Email = reg.PublicInfo.Email
		data.Name = reg.PublicInfo.Name
		return data, nil
	}
	if reg.UserID == nil {
		return nil, domain.ErrInvalidSubject
	}
	user, err := s.store.Users().GetByID(ctx, *reg.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	data.Email = user.Email
	data.Name = user.FullName()
	return data, nil
}

// formatAmount renders minor units, e.g. 50000 BDT as "500.00 BDT".
func formatAmount(amount int64, currency string) string {
	if amount == 0 {
		return "Free"
	}
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, currency)
}

func marshalPayload(p *domain.CallbackPayload) []byte {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return raw
}
