package model

import "time"

// Role names carried in the JWT "role" claim.
const (
	RoleCurator = "CURATOR"
	RoleBuyer   = "BUYER"
	RoleAdmin   = "ADMIN"
)

// User represents a marketplace account as stored in the `users` table.
// Only the fields settlement needs are mapped here; credentials and
// sessions belong to the authentication service.
//
// Fields:
//  ID               – primary key identifier of the user.
//  DisplayName      – name shown to the counterparty (winner name).
//  Email            – unique email address.
//  Role             – CURATOR, BUYER or ADMIN.
//  PayoutAccountRef – connected payment account used for seller payouts.
type User struct {
	ID               uint64    // users.id
	DisplayName      string    // users.display_name
	Email            string    // users.email
	Role             string    // users.role
	PayoutAccountRef *string   // users.payout_account_ref (nullable)
	CreatedAt        time.Time // users.created_at
	UpdatedAt        time.Time // users.updated_at
}
