package services

import (
	"context"
	"errors"
	"time"

	"campusclubs/internal/domain"
)

type eventPolicy struct{}

// NewEventRegistrationService returns the registration service for events. A verified payment moves
// an event registration through paid before it is confirmed.
func NewEventRegistrationService(deps RegistrationDeps) domain.RegistrationService {
	return newRegistrationService(eventPolicy{}, deps)
}

func (eventPolicy) kind() domain.Kind { return domain.KindEvent }

func (eventPolicy) get(ctx context.Context, store domain.Store, targetID string, forUpdate bool) (*registrationTarget, error) {
	var e *domain.Event
	var err error
	if forUpdate {
		e, err = store.Events().GetForUpdate(ctx, targetID)
	} else {
		e, err = store.Events().GetByID(ctx, targetID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTargetMissing
		}
		return nil, err
	}
	return &registrationTarget{
		ID:        e.ID,
		Name:      e.Title,
		OwnerID:   e.OwnerID,
		Fee:       e.Fee,
		Currency:  e.Currency,
		checkOpen: func(now time.Time) error { return e.CheckOpen(now) },
		hasRoom:   e.HasRoom,
	}, nil
}

func (eventPolicy) adjustCounter(ctx context.Context, store domain.Store, targetID string, delta int) error {
	return store.Events().AdjustParticipants(ctx, targetID, delta)
}

func (eventPolicy) setCounter(ctx context.Context, store domain.Store, targetID string, count int) error {
	return store.Events().SetParticipants(ctx, targetID, count)
}

func (eventPolicy) successPath() []domain.StatusChange {
	return []domain.StatusChange{domain.ChangeMarkPaid, domain.ChangeConfirmPaid}
}

func (eventPolicy) allowsOnBehalf() bool { return false }
