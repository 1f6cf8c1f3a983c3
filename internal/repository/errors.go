// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// settlement engine and handlers to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import "errors"

// ErrListingNotFound is returned when no listing row matches the id.
var ErrListingNotFound = errors.New("listing not found")

// ErrTransactionNotFound is returned when no settlement transaction exists.
var ErrTransactionNotFound = errors.New("transaction not found")

// ErrUserNotFound is returned when a referenced user does not exist.
var ErrUserNotFound = errors.New("user not found")

// ErrConflict is returned when a write collides with an existing row, such
// as a second transaction for the same listing.  The unique index on
// transactions.listing_id backs the lookup-before-insert check.
var ErrConflict = errors.New("conflict")

// ErrInvalidValue is returned when a persisted enum column holds a value the
// service does not recognise.
var ErrInvalidValue = errors.New("invalid stored value")
