package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/auction-settlement/internal/fees"
	"github.com/iliyamo/auction-settlement/internal/repository"
)

// Validation, authorization and state errors.  They are returned before
// any commit and leave the listing untouched.
var (
	ErrInvalidListingID    = errors.New("listing id is required")
	ErrInvalidReason       = errors.New("reason must be timer_expired or curator_closed")
	ErrListingNotFound     = errors.New("listing not found")
	ErrNotSeller           = errors.New("only the seller may close this auction")
	ErrListingNotActive    = errors.New("listing is not active")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("transaction status does not allow this change")
	ErrNoPayoutAccount     = errors.New("seller has no payout account")
)

// TooEarlyError rejects a timer_expired completion that arrives before the
// auction end minus the grace window.  EndsAt is the true end time.
type TooEarlyError struct {
	EndsAt time.Time
}

func (e *TooEarlyError) Error() string {
	return fmt.Sprintf("auction still active until %s", e.EndsAt.UTC().Format(time.RFC3339))
}

// TransientError wraps a store or infrastructure failure.  The unit was
// rolled back and the call is safe to retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// DataError reports stored data the engine cannot settle: a winning bid
// below the starting price, an unknown fee tier or a corrupt status column.
// The unit was rolled back and retrying fails the same way until the rows
// are repaired.
type DataError struct {
	Op  string
	Err error
}

func (e *DataError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *DataError) Unwrap() error { return e.Err }

// classify maps repository sentinels onto settlement ones, reports bad
// stored data as a DataError and wraps everything else as a TransientError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var tooEarly *TooEarlyError
	switch {
	case errors.As(err, &tooEarly):
		return err
	case errors.Is(err, repository.ErrListingNotFound):
		return ErrListingNotFound
	case errors.Is(err, repository.ErrTransactionNotFound):
		return ErrTransactionNotFound
	case errors.Is(err, ErrInvalidListingID), errors.Is(err, ErrInvalidReason),
		errors.Is(err, ErrListingNotFound), errors.Is(err, ErrNotSeller),
		errors.Is(err, ErrListingNotActive), errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNoPayoutAccount):
		return err
	case errors.Is(err, fees.ErrInvalidAmount), errors.Is(err, repository.ErrInvalidValue):
		return &DataError{Op: op, Err: err}
	}
	return &TransientError{Op: op, Err: err}
}
