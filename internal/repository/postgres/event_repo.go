package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"campusclubs/internal/domain"
)

type eventRepository struct {
	DB dbtx
}

func NewEventRepository(db *sql.DB) domain.EventRepository {
	return &eventRepository{
		DB: db,
	}
}

const eventColumns = `id, title, club_id, owner_id, fee, currency, starts_at, registration_deadline,
	max_participants, current_participants, created_at, updated_at`

func scanEvent(row rowScanner) (*domain.Event, error) {
	e := &domain.Event{}
	var clubID sql.NullString
	var deadline sql.NullTime
	var maxParticipants sql.NullInt64
	err := row.Scan(
		&e.ID, &e.Title, &clubID, &e.OwnerID, &e.Fee, &e.Currency, &e.StartsAt, &deadline,
		&maxParticipants, &e.CurrentParticipants, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if noRow(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if clubID.Valid {
		e.ClubID = &clubID.String
	}
	if deadline.Valid {
		e.RegistrationDeadline = &deadline.Time
	}
	if maxParticipants.Valid {
		n := int(maxParticipants.Int64)
		e.MaxParticipants = &n
	}
	return e, nil
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	return scanEvent(r.DB.QueryRowContext(ctx, query, id))
}

func (r *eventRepository) GetForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 FOR UPDATE`
	return scanEvent(r.DB.QueryRowContext(ctx, query, id))
}

func (r *eventRepository) AdjustParticipants(ctx context.Context, id string, delta int) error {
	query := `
		UPDATE events
		SET current_participants = current_participants + $2, updated_at = NOW()
		WHERE id = $1 AND current_participants + $2 >= 0
	`
	return adjustCounter(ctx, r.DB, query, "events", id, delta)
}

func (r *eventRepository) SetParticipants(ctx context.Context, id string, count int) error {
	query := `UPDATE events SET current_participants = $2, updated_at = NOW() WHERE id = $1`
	return setCounter(ctx, r.DB, query, id, count)
}

// adjustCounter runs a guarded increment. A miss is either an unknown row or an underflow;
// the existence probe tells them apart.
func adjustCounter(ctx context.Context, db dbtx, query, table, id string, delta int) error {
	result, err := db.ExecContext(ctx, query, id, delta)
	if err != nil {
		return fmt.Errorf("adjust %s counter: %w", table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrCounterUnderflow
}

func setCounter(ctx context.Context, db dbtx, query, id string, count int) error {
	if count < 0 {
		return domain.ErrCounterUnderflow
	}
	result, err := db.ExecContext(ctx, query, id, count)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
