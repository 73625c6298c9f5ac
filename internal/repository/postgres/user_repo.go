package postgres

import (
	"context"
	"database/sql"

	"campusclubs/internal/domain"
)

type userRepository struct {
	DB dbtx
}

func NewUserRepository(db *sql.DB) domain.UserRepository {
	return &userRepository{DB: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, email, name, last_name, phone, student_id, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	u := &domain.User{}
	var studentID sql.NullString
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &u.LastName, &u.Phone, &studentID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if noRow(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	u.StudentID = studentID.String
	return u, nil
}
