package domain

import (
	"context"
	"time"
)

// Role codes carried in access tokens.
const (
	RoleStudent = "student"
	RoleClub    = "club"
	RoleAdmin   = "admin"
)

// User represents a registered account.
// swagger:model User
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone"`
	StudentID string    `json:"student_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.Name
	}
	return u.Name + " " + u.LastName
}

// Requester is the authenticated caller of an operation.
type Requester struct {
	UserID string
	Roles  []string
}

// HasRole reports whether the requester carries role.
func (r *Requester) HasRole(role string) bool {
	if r == nil {
		return false
	}
	for _, v := range r.Roles {
		if v == role {
			return true
		}
	}
	return false
}

// TokenVerifier verifies a bearer token and returns the authenticated requester.
type TokenVerifier interface {
	Verify(token string) (*Requester, error)
}

// UserRepository defines the interface for user storage
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
