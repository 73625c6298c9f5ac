package domain

import (
	"context"
	"time"
)

// Club is a student club with an optional paid membership registration window.
// swagger:model Club
type Club struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	OwnerID             string     `json:"owner_id"`
	RegistrationEnabled bool       `json:"registration_enabled"`
	RegistrationStart   *time.Time `json:"registration_start,omitempty"`
	RegistrationEnd     *time.Time `json:"registration_end,omitempty"`
	RegistrationFee     int64      `json:"registration_fee"`
	Currency            string     `json:"currency"`
	MembersCount        int        `json:"members_count"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// CheckOpen returns ErrRegistrationClosed unless the club's registration window contains now.
func (c *Club) CheckOpen(now time.Time) error {
	if !c.RegistrationEnabled {
		return ErrRegistrationClosed
	}
	if c.RegistrationStart != nil && now.Before(*c.RegistrationStart) {
		return ErrRegistrationClosed
	}
	if c.RegistrationEnd != nil && !now.Before(*c.RegistrationEnd) {
		return ErrRegistrationClosed
	}
	return nil
}

// ClubRepository defines the club storage this service needs.
type ClubRepository interface {
	GetByID(ctx context.Context, id string) (*Club, error)
	GetForUpdate(ctx context.Context, id string) (*Club, error)
	AdjustMembers(ctx context.Context, id string, delta int) error
	SetMembers(ctx context.Context, id string, count int) error
}
