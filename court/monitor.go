package court

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"sealedcourt/dispute"
)

const defaultMonitorInterval = time.Minute

// Monitor periodically fires the timeout checks for stalled disputes so
// nobody has to call them by hand.
type Monitor struct {
	court    *Court
	interval time.Duration
	logger   zerolog.Logger
}

func NewMonitor(c *Court, interval time.Duration, logger zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	return &Monitor{
		court:    c,
		interval: interval,
		logger:   logger.With().Str("component", "timeout_monitor").Logger(),
	}
}

// Run sweeps until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep checks every open dispute once and returns how many it timed out.
// It then retries payouts left unsettled.
func (m *Monitor) Sweep(ctx context.Context) int {
	swept := m.sweepDisputes(ctx)
	if n, err := m.court.RetryPayouts(ctx); err != nil {
		if !errors.Is(err, ErrClosed) {
			m.logger.Error().Err(err).Msg("failed to retry payouts")
		}
	} else if n > 0 {
		m.logger.Warn().Int("payouts", n).Msg("retried unsettled payouts")
	}
	return swept
}

func (m *Monitor) sweepDisputes(ctx context.Context) int {
	open, err := m.court.disputes.ListByStatus(ctx, dispute.StatusInArbitration, dispute.StatusVoting)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to list open disputes")
		return 0
	}
	if len(open) == 0 {
		return 0
	}

	swept := 0
	for _, d := range open {
		var err error
		switch d.Status {
		case dispute.StatusInArbitration:
			err = m.court.CheckVotingTimeout(ctx, d.ID)
		case dispute.StatusVoting:
			err = m.court.CheckDecryptionTimeout(ctx, d.ID)
		}
		switch {
		case err == nil:
			swept++
		case errors.Is(err, ErrTimeoutNotReached), errors.Is(err, ErrBadStatus):
		case errors.Is(err, ErrClosed):
			return swept
		default:
			m.logger.Error().Err(err).Uint64("dispute_id", d.ID).Msg("failed to time out dispute")
		}
	}

	if swept > 0 {
		m.logger.Info().Int("swept", swept).Int("open", len(open)).Msg("timed out stalled disputes")
	}
	return swept
}
