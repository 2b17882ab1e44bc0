package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/smart-parking/internal/model"
)

// UserRepo reads the 'users' table.  Accounts are provisioned by the
// identity service; this service only needs to resolve references.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,username,email,created_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns up to limit users ordered by username.
func (r *UserRepo) List(ctx context.Context, limit int) ([]model.User, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,username,email,created_at FROM users ORDER BY username LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
