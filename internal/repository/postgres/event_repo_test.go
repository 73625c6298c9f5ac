package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"campusclubs/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var eventCols = []string{
	"id", "title", "club_id", "owner_id", "fee", "currency", "starts_at", "registration_deadline",
	"max_participants", "current_participants", "created_at", "updated_at",
}

func TestEventRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	starts := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	deadline := time.Date(2026, 4, 28, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		id      string
		mock    func(mock sqlmock.Sqlmock)
		want    *domain.Event
		wantErr bool
		errIs   error
	}{
		{
			name: "found with optional fields",
			id:   "ev-1",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
					WithArgs("ev-1").
					WillReturnRows(sqlmock.NewRows(eventCols).
						AddRow("ev-1", "Hack Night", "club-1", "owner-1", int64(50000), "BDT", starts, deadline, int64(100), 12, created, created))
			},
			want: func() *domain.Event {
				club, limit := "club-1", 100
				return &domain.Event{
					ID: "ev-1", Title: "Hack Night", ClubID: &club, OwnerID: "owner-1", Fee: 50000, Currency: "BDT",
					StartsAt: starts, RegistrationDeadline: &deadline, MaxParticipants: &limit, CurrentParticipants: 12,
					CreatedAt: created, UpdatedAt: created,
				}
			}(),
		},
		{
			name: "found without optional fields",
			id:   "ev-2",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
					WithArgs("ev-2").
					WillReturnRows(sqlmock.NewRows(eventCols).
						AddRow("ev-2", "Open Day", nil, "owner-1", int64(0), "BDT", starts, nil, nil, 0, created, created))
			},
			want: &domain.Event{
				ID: "ev-2", Title: "Open Day", OwnerID: "owner-1", Currency: "BDT",
				StartsAt: starts, CreatedAt: created, UpdatedAt: created,
			},
		},
		{
			name: "not found",
			id:   "missing",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM events`).
					WithArgs("missing").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: true,
			errIs:   domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewEventRepository(db)
			got, err := repo.GetByID(ctx, tt.id)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errIs != nil {
					require.ErrorIs(t, err, tt.errIs)
				}
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_GetForUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1 FOR UPDATE`).
		WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow("ev-1", "Hack Night", nil, "owner-1", int64(0), "BDT", now, nil, nil, 3, now, now))

	e, err := NewEventRepository(db).GetForUpdate(context.Background(), "ev-1")
	require.NoError(t, err)
	require.Equal(t, 3, e.CurrentParticipants)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_AdjustParticipants(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		delta int
		mock  func(mock sqlmock.Sqlmock)
		errIs error
	}{
		{
			name:  "increment",
			delta: 1,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events\s+SET current_participants = current_participants \+ \$2`).
					WithArgs("ev-1", 1).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name:  "underflow",
			delta: -1,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events`).
					WithArgs("ev-1", -1).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM events WHERE id = \$1\)`).
					WithArgs("ev-1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
			errIs: domain.ErrCounterUnderflow,
		},
		{
			name:  "unknown event",
			delta: 1,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events`).
					WithArgs("ev-1", 1).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs("ev-1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			},
			errIs: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			err = NewEventRepository(db).AdjustParticipants(ctx, "ev-1", tt.delta)
			if tt.errIs != nil {
				require.ErrorIs(t, err, tt.errIs)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_SetParticipants(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewEventRepository(db)
	require.ErrorIs(t, repo.SetParticipants(context.Background(), "ev-1", -2), domain.ErrCounterUnderflow)

	mock.ExpectExec(`UPDATE events SET current_participants = \$2`).
		WithArgs("ev-1", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetParticipants(context.Background(), "ev-1", 7))

	mock.ExpectExec(`UPDATE events SET current_participants = \$2`).
		WithArgs("ev-x", 0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.SetParticipants(context.Background(), "ev-x", 0), domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
