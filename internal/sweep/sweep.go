// Package sweep holds the scheduled safety nets.  AuctionSweeper re-drives
// the completion engine for overdue auctions the client path missed;
// AutoConfirmSweeper advances stale shipments and pays sellers out.
package sweep

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/auction-settlement/internal/lease"
	"github.com/iliyamo/auction-settlement/internal/model"
	"github.com/iliyamo/auction-settlement/internal/settlement"
)

// Completer is the part of settlement.Engine the auction sweep drives.
type Completer interface {
	Complete(ctx context.Context, listingID uint64, reason model.CompletionReason, actor settlement.Actor) (settlement.Result, error)
}

// OverdueLister finds active listings whose auction ended at or before cutoff.
type OverdueLister interface {
	OverdueListings(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
}

// Config bounds one sweep run.
type Config struct {
	Grace     time.Duration
	BatchSize int
	Budget    time.Duration
	LeaseTTL  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Grace <= 0 {
		c.Grace = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Budget <= 0 {
		c.Budget = 5 * time.Minute
	}
	if c.LeaseTTL < c.Budget {
		c.LeaseTTL = c.Budget + time.Minute
	}
	return c
}

// ItemError is one listing the sweep could not process.
type ItemError struct {
	ListingID uint64 `json:"listing_id"`
	Error     string `json:"error"`
}

// Report aggregates one auction sweep run.  Skipped is set when another
// runner held the lease; Remaining counts listings left for the next run
// because the time budget ran out.  Errors are retried on the next run;
// NeedsRepair lists listings whose stored data can't settle until fixed.
type Report struct {
	Processed            int         `json:"processed"`
	SettledWithWinner    int         `json:"settled_with_winner"`
	SettledWithoutWinner int         `json:"settled_without_winner"`
	AlreadyProcessed     int         `json:"already_processed"`
	Remaining            int         `json:"remaining"`
	Skipped              bool        `json:"skipped"`
	Errors               []ItemError `json:"errors"`
	NeedsRepair          []ItemError `json:"needs_repair"`
}

const auctionLeaseKey = "sweep:auctions"

// AuctionSweeper runs the reconciliation pass.
type AuctionSweeper struct {
	lister OverdueLister
	engine Completer
	locker lease.Locker
	log    *zap.Logger
	cfg    Config
	now    func() time.Time
}

// NewAuctionSweeper wires a sweeper.  locker may be nil when only one
// replica runs.
func NewAuctionSweeper(lister OverdueLister, engine Completer, locker lease.Locker, log *zap.Logger, cfg Config) *AuctionSweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuctionSweeper{
		lister: lister,
		engine: engine,
		locker: locker,
		log:    log.Named("sweep.auctions"),
		cfg:    cfg.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run processes up to one batch of overdue listings, oldest first.  Each
// listing is its own unit; failures are collected in the report and never
// stop the batch.  The returned error is non-nil only when the batch could
// not be loaded.
func (s *AuctionSweeper) Run(ctx context.Context) (Report, error) {
	rep := Report{Errors: []ItemError{}, NeedsRepair: []ItemError{}}

	release, ok, err := acquire(ctx, s.locker, auctionLeaseKey, s.cfg.LeaseTTL)
	if err != nil {
		s.log.Warn("lease unavailable, sweeping without it", zap.Error(err))
	} else if !ok {
		s.log.Info("another runner holds the sweep lease")
		rep.Skipped = true
		return rep, nil
	}
	if release != nil {
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("lease release failed", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Budget)
	defer cancel()

	ids, err := s.lister.OverdueListings(ctx, s.now().Add(-s.cfg.Grace), s.cfg.BatchSize)
	if err != nil {
		return rep, err
	}
	for i, id := range ids {
		if ctx.Err() != nil {
			rep.Remaining = len(ids) - i
			break
		}
		rep.Processed++
		res, err := s.engine.Complete(ctx, id, model.ReasonTimerExpired, settlement.SystemActor())
		var bad *settlement.DataError
		if errors.As(err, &bad) {
			rep.NeedsRepair = append(rep.NeedsRepair, ItemError{ListingID: id, Error: err.Error()})
			s.log.Error("listing needs repair", zap.Uint64("listing_id", id), zap.Error(err))
			continue
		}
		if err != nil {
			rep.Errors = append(rep.Errors, ItemError{ListingID: id, Error: err.Error()})
			s.log.Warn("listing reconciliation failed", zap.Uint64("listing_id", id), zap.Error(err))
			continue
		}
		switch {
		case res.Status == settlement.OutcomeAlreadyCompleted, res.Reconciled:
			rep.AlreadyProcessed++
		case res.Status == settlement.OutcomeSold:
			rep.SettledWithWinner++
		case res.Status == settlement.OutcomeExpired:
			rep.SettledWithoutWinner++
		}
	}

	s.log.Info("auction sweep finished",
		zap.Int("processed", rep.Processed),
		zap.Int("settled_with_winner", rep.SettledWithWinner),
		zap.Int("settled_without_winner", rep.SettledWithoutWinner),
		zap.Int("already_processed", rep.AlreadyProcessed),
		zap.Int("remaining", rep.Remaining),
		zap.Int("errors", len(rep.Errors)),
		zap.Int("needs_repair", len(rep.NeedsRepair)))
	return rep, nil
}

func acquire(ctx context.Context, l lease.Locker, key string, ttl time.Duration) (lease.Release, bool, error) {
	if l == nil {
		return nil, true, nil
	}
	release, ok, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, false, err
	}
	return release, ok, nil
}

// isSkippable reports errors that mean "nothing to do for this item".
func isSkippable(err error) bool {
	return errors.Is(err, settlement.ErrInvalidTransition) || errors.Is(err, settlement.ErrNoPayoutAccount)
}
