package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/auction-settlement/internal/model"
)

// UserRepo reads the users table.  Accounts are created by the
// authentication service.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userQuery = "SELECT id,display_name,email,role,payout_account_ref,created_at,updated_at FROM users WHERE id=? LIMIT 1"

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u      model.User
		payout sql.NullString
	)
	err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.Role, &payout, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if payout.Valid && payout.String != "" {
		p := payout.String
		u.PayoutAccountRef = &p
	}
	return &u, nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, userQuery, id))
}

// GetByIDTx fetches a user by id within the caller's transaction.
func (r *UserRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.User, error) {
	return scanUser(tx.QueryRowContext(ctx, userQuery, id))
}
