package repository

import (
	"context"

	"github.com/jperezm/concert-reservation/internal/database"
)

// AccountRepo reads user contact details from the accounts store.  Account
// creation, password hashing and token issuance are owned by the identity
// service; this repo only resolves the email a confirmed reservation's
// ticket should be delivered to.
type AccountRepo struct {
	db *database.Client
}

// NewAccountRepo returns an AccountRepo bound to the accounts store.
func NewAccountRepo(db *database.Client) *AccountRepo { return &AccountRepo{db: db} }

// GetEmail resolves the contact email for a user.  Returns ErrNotFound when
// the user does not exist.
func (r *AccountRepo) GetEmail(ctx context.Context, userID string) (string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT email FROM users WHERE id = ?`, userID)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", err
		}
		return "", ErrNotFound
	}
	var email string
	if err := rows.Scan(&email); err != nil {
		return "", err
	}
	return email, nil
}
