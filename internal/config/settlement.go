package config

import "time"

// SettlementConfig holds the completion engine, sweep and dispatcher knobs.
type SettlementConfig struct {
	TimerGrace     time.Duration
	CaptureTimeout time.Duration
	UnitTimeout    time.Duration

	SweepGrace     time.Duration
	SweepBatchSize int
	SweepBudget    time.Duration
	SweepSchedule  string // cron spec with seconds

	AutoConfirmAfter    time.Duration
	AutoConfirmSchedule string

	DispatchBuffer  int
	DispatchWorkers int
	DispatchTimeout time.Duration

	LeasePrefix string
}

// LoadSettlementConfig reads SETTLEMENT_*, SWEEP_*, AUTO_CONFIRM_* and
// DISPATCH_* variables with production defaults.
func LoadSettlementConfig() SettlementConfig {
	c := SettlementConfig{
		TimerGrace:          envDur("SETTLEMENT_TIMER_GRACE", 5*time.Second),
		CaptureTimeout:      envDur("CAPTURE_TIMEOUT", 15*time.Second),
		UnitTimeout:         envDur("SETTLEMENT_UNIT_TIMEOUT", 30*time.Second),
		SweepGrace:          envDur("SWEEP_GRACE", 5*time.Minute),
		SweepBatchSize:      envInt("SWEEP_BATCH_SIZE", 50),
		SweepBudget:         envDur("SWEEP_BUDGET", 5*time.Minute),
		SweepSchedule:       envStr("SWEEP_SCHEDULE", "0 0 * * * *"),
		AutoConfirmAfter:    envDur("AUTO_CONFIRM_AFTER", 7*24*time.Hour),
		AutoConfirmSchedule: envStr("AUTO_CONFIRM_SCHEDULE", "0 30 * * * *"),
		DispatchBuffer:      envInt("DISPATCH_BUFFER", 256),
		DispatchWorkers:     envInt("DISPATCH_WORKERS", 2),
		DispatchTimeout:     envDur("DISPATCH_TIMEOUT", 10*time.Second),
		LeasePrefix:         envStr("LEASE_PREFIX", "settlement"),
	}
	if c.SweepBatchSize < 1 {
		c.SweepBatchSize = 1
	}
	// The capture runs inside the unit, so the unit must outlast it.
	if c.UnitTimeout <= c.CaptureTimeout {
		c.UnitTimeout = 2 * c.CaptureTimeout
	}
	return c
}
