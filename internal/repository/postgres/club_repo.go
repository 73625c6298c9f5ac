package postgres

import (
	"context"
	"database/sql"

	"campusclubs/internal/domain"
)

type clubRepository struct {
	DB dbtx
}

func NewClubRepository(db *sql.DB) domain.ClubRepository {
	return &clubRepository{DB: db}
}

const clubColumns = `id, name, owner_id, registration_enabled, registration_start, registration_end,
	registration_fee, currency, members_count, created_at, updated_at`

func scanClub(row rowScanner) (*domain.Club, error) {
	c := &domain.Club{}
	var start, end sql.NullTime
	err := row.Scan(
		&c.ID, &c.Name, &c.OwnerID, &c.RegistrationEnabled, &start, &end,
		&c.RegistrationFee, &c.Currency, &c.MembersCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if noRow(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if start.Valid {
		c.RegistrationStart = &start.Time
	}
	if end.Valid {
		c.RegistrationEnd = &end.Time
	}
	return c, nil
}

func (r *clubRepository) GetByID(ctx context.Context, id string) (*domain.Club, error) {
	query := `SELECT ` + clubColumns + ` FROM clubs WHERE id = $1`
	return scanClub(r.DB.QueryRowContext(ctx, query, id))
}

func (r *clubRepository) GetForUpdate(ctx context.Context, id string) (*domain.Club, error) {
	query := `SELECT ` + clubColumns + ` FROM clubs WHERE id = $1 FOR UPDATE`
	return scanClub(r.DB.QueryRowContext(ctx, query, id))
}

func (r *clubRepository) AdjustMembers(ctx context.Context, id string, delta int) error {
	query := `
		UPDATE clubs
		SET members_count = members_count + $2, updated_at = NOW()
		WHERE id = $1 AND members_count + $2 >= 0
	`
	return adjustCounter(ctx, r.DB, query, "clubs", id, delta)
}

func (r *clubRepository) SetMembers(ctx context.Context, id string, count int) error {
	query := `UPDATE clubs SET members_count = $2, updated_at = NOW() WHERE id = $1`
	return setCounter(ctx, r.DB, query, id, count)
}
