package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"campusclubs/internal/domain"
)

type store struct {
	db dbtx
}

// NewStore returns a domain.Store whose repositories run directly on db.
func NewStore(db *sql.DB) domain.Store {
	return &store{db: db}
}

func (s *store) Registrations(kind domain.Kind) domain.RegistrationRepository {
	switch kind {
	case domain.KindClub:
		return newClubRegistrationRepository(s.db)
	default:
		return newEventRegistrationRepository(s.db)
	}
}

func (s *store) Events() domain.EventRepository { return &eventRepository{DB: s.db} }

func (s *store) Clubs() domain.ClubRepository { return &clubRepository{DB: s.db} }

func (s *store) Users() domain.UserRepository { return &userRepository{DB: s.db} }

type transactor struct {
	db *sql.DB
}

// NewTransactor returns a domain.Transactor backed by database/sql transactions.
func NewTransactor(db *sql.DB) domain.Transactor {
	return &transactor{db: db}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, store domain.Store) error) error {
	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &store{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
