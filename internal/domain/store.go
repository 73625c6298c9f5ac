package domain

import "context"

// Store exposes the repositories that take part in a unit of work.
type Store interface {
	Registrations(kind Kind) RegistrationRepository
	Events() EventRepository
	Clubs() ClubRepository
	Users() UserRepository
}

// Transactor runs fn inside a single database transaction. The Store passed to fn is bound to
// that transaction; returning an error from fn rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
