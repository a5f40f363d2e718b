package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"compliance-case-service/internal/models"
)

// UserExists checks the user directory for id.
func (s *Postgres) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user %s: %w", id, err)
	}
	return exists, nil
}

// GetUser fetches a directory entry.
func (s *Postgres) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	var u models.User
	err := s.Pool.QueryRow(ctx,
		`SELECT id, full_name, email, role FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.FullName, &u.Email, &u.Role)
	if noRows(err) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return u, nil
}
