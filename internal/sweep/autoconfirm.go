package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/auction-settlement/internal/lease"
	"github.com/iliyamo/auction-settlement/internal/settlement"
)

// Lifecycle is the part of settlement.Engine the auto-confirm sweep drives.
type Lifecycle interface {
	AutoConfirm(ctx context.Context, listingID uint64, cutoff time.Time) (bool, error)
	Payout(ctx context.Context, listingID uint64) (settlement.PayoutResult, error)
}

// StaleShippedLister finds shipped transactions older than cutoff.
type StaleShippedLister interface {
	StaleShipped(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
}

// AutoConfirmConfig bounds one auto-confirm run.  After is how long a
// shipment may wait for buyer confirmation.
type AutoConfirmConfig struct {
	After     time.Duration
	BatchSize int
	Budget    time.Duration
}

// AutoConfirmReport aggregates one auto-confirm run.
type AutoConfirmReport struct {
	Processed  int         `json:"processed"`
	Confirmed  int         `json:"confirmed"`
	PaidOut    int         `json:"paid_out"`
	PayoutHeld int         `json:"payout_held"`
	Remaining  int         `json:"remaining"`
	Skipped    bool        `json:"skipped"`
	Errors     []ItemError `json:"errors"`
}

const autoConfirmLeaseKey = "sweep:auto-confirm"

// AutoConfirmSweeper delivers stale shipments and pays the seller.
type AutoConfirmSweeper struct {
	lister StaleShippedLister
	engine Lifecycle
	locker lease.Locker
	log    *zap.Logger
	cfg    AutoConfirmConfig
	now    func() time.Time
}

// NewAutoConfirmSweeper wires an auto-confirm sweeper.
func NewAutoConfirmSweeper(lister StaleShippedLister, engine Lifecycle, locker lease.Locker, log *zap.Logger, cfg AutoConfirmConfig) *AutoConfirmSweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.After <= 0 {
		cfg.After = 7 * 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 5 * time.Minute
	}
	return &AutoConfirmSweeper{
		lister: lister,
		engine: engine,
		locker: locker,
		log:    log.Named("sweep.autoconfirm"),
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run confirms up to one batch of stale shipments.  A payout that cannot
// run yet (no payout account) is counted as held, not as an error.
func (s *AutoConfirmSweeper) Run(ctx context.Context) (AutoConfirmReport, error) {
	rep := AutoConfirmReport{Errors: []ItemError{}}

	release, ok, err := acquire(ctx, s.locker, autoConfirmLeaseKey, s.cfg.Budget+time.Minute)
	if err != nil {
		s.log.Warn("lease unavailable, sweeping without it", zap.Error(err))
	} else if !ok {
		rep.Skipped = true
		return rep, nil
	}
	if release != nil {
		defer func() { _ = release(context.WithoutCancel(ctx)) }()
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Budget)
	defer cancel()

	cutoff := s.now().Add(-s.cfg.After)
	ids, err := s.lister.StaleShipped(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return rep, err
	}
	for i, id := range ids {
		if ctx.Err() != nil {
			rep.Remaining = len(ids) - i
			break
		}
		rep.Processed++
		changed, err := s.engine.AutoConfirm(ctx, id, cutoff)
		if err != nil {
			rep.Errors = append(rep.Errors, ItemError{ListingID: id, Error: err.Error()})
			continue
		}
		if !changed {
			continue
		}
		rep.Confirmed++
		if _, err := s.engine.Payout(ctx, id); err != nil {
			if isSkippable(err) {
				rep.PayoutHeld++
				continue
			}
			rep.Errors = append(rep.Errors, ItemError{ListingID: id, Error: err.Error()})
			s.log.Warn("payout failed", zap.Uint64("listing_id", id), zap.Error(err))
			continue
		}
		rep.PaidOut++
	}

	s.log.Info("auto-confirm sweep finished",
		zap.Int("processed", rep.Processed),
		zap.Int("confirmed", rep.Confirmed),
		zap.Int("paid_out", rep.PaidOut),
		zap.Int("errors", len(rep.Errors)))
	return rep, nil
}
