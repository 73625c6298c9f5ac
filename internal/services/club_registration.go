package services

import (
	"context"
	"errors"
	"time"

	"campusclubs/internal/domain"
)

type clubPolicy struct{}

// NewClubRegistrationService returns the registration service for club memberships. The club's own
// account may register a member on their behalf; such registrations carry no fee.
func NewClubRegistrationService(deps RegistrationDeps) domain.RegistrationService {
	return newRegistrationService(clubPolicy{}, deps)
}

func (clubPolicy) kind() domain.Kind { return domain.KindClub }

func (clubPolicy) get(ctx context.Context, store domain.Store, targetID string, forUpdate bool) (*registrationTarget, error) {
	var c *domain.Club
	var err error
	if forUpdate {
		c, err = store.Clubs().GetForUpdate(ctx, targetID)
	} else {
		c, err = store.Clubs().GetByID(ctx, targetID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTargetMissing
		}
		return nil, err
	}
	return &registrationTarget{
		ID:        c.ID,
		Name:      c.Name,
		OwnerID:   c.OwnerID,
		Fee:       c.RegistrationFee,
		Currency:  c.Currency,
		checkOpen: func(now time.Time) error { return c.CheckOpen(now) },
	}, nil
}

func (clubPolicy) adjustCounter(ctx context.Context, store domain.Store, targetID string, delta int) error {
	return store.Clubs().AdjustMembers(ctx, targetID, delta)
}

func (clubPolicy) setCounter(ctx context.Context, store domain.Store, targetID string, count int) error {
	return store.Clubs().SetMembers(ctx, targetID, count)
}

func (clubPolicy) successPath() []domain.StatusChange {
	return []domain.StatusChange{domain.ChangeConfirmPending}
}

func (clubPolicy) allowsOnBehalf() bool { return true }
