package domain

import (
	"context"
	"time"
)

// Event is a club-organized event that members or the public can register for.
// swagger:model Event
type Event struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	ClubID               *string    `json:"club_id,omitempty"`
	OwnerID              string     `json:"owner_id"`
	Fee                  int64      `json:"fee"`
	Currency             string     `json:"currency"`
	StartsAt             time.Time  `json:"starts_at"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`
	MaxParticipants      *int       `json:"max_participants,omitempty"`
	CurrentParticipants  int        `json:"current_participants"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// CheckOpen returns ErrRegistrationClosed or ErrTargetFull when the event does not accept registrations at now.
func (e *Event) CheckOpen(now time.Time) error {
	if e.RegistrationDeadline != nil && !now.Before(*e.RegistrationDeadline) {
		return ErrRegistrationClosed
	}
	if !e.StartsAt.IsZero() && !now.Before(e.StartsAt) {
		return ErrRegistrationClosed
	}
	if e.MaxParticipants != nil && e.CurrentParticipants >= *e.MaxParticipants {
		return ErrTargetFull
	}
	return nil
}

// HasRoom reports whether a capped event can take one more registration while held seats are reserved
// for registrants still paying.
func (e *Event) HasRoom(held int) bool {
	return e.MaxParticipants == nil || e.CurrentParticipants+held < *e.MaxParticipants
}

// EventRepository defines the event storage this service needs.
type EventRepository interface {
	GetByID(ctx context.Context, id string) (*Event, error)
	// GetForUpdate reads the event and locks its row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Event, error)
	// AdjustParticipants adds delta to current_participants; ErrCounterUnderflow if it would go negative.
	AdjustParticipants(ctx context.Context, id string, delta int) error
	SetParticipants(ctx context.Context, id string, count int) error
}
