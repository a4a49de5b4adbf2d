package court

import (
	"fmt"
	"math"
	"time"

	"sealedcourt/account"
)

// Params are the court's configuration constants.
type Params struct {
	// Owner may pause and unpause arbitrators.
	Owner account.Address

	VotingWindow      time.Duration
	VotingTimeout     time.Duration
	DecryptionTimeout time.Duration

	// ArbitratorCount is N, the size of every assigned panel.
	ArbitratorCount int

	MinEscrow uint64
	// ObfuscationMultiplier scales the escrow before it is encrypted.
	ObfuscationMultiplier uint64

	WinnerReward       int64
	LoserPenalty       int64
	ArbitratorReward   int64
	BaselineReputation int64

	// TransferTimeout bounds each outgoing transfer.
	TransferTimeout time.Duration
	// PayoutRetryDelay is how long a payout may stay unsettled before the
	// monitor pushes it again. Zero means twice the transfer timeout.
	PayoutRetryDelay time.Duration
}

func DefaultParams() Params {
	return Params{
		VotingWindow:          7 * 24 * time.Hour,
		VotingTimeout:         7 * 24 * time.Hour,
		DecryptionTimeout:     3 * 24 * time.Hour,
		ArbitratorCount:       3,
		MinEscrow:             10_000_000,
		ObfuscationMultiplier: 1_000_003,
		WinnerReward:          10,
		LoserPenalty:          5,
		ArbitratorReward:      2,
		BaselineReputation:    100,
		TransferTimeout:       5 * time.Second,
		PayoutRetryDelay:      time.Minute,
	}
}

func (p Params) validate() error {
	switch {
	case p.Owner.IsZero():
		return fmt.Errorf("court: params: owner is required")
	case p.ArbitratorCount <= 0:
		return fmt.Errorf("court: params: arbitrator count must be positive")
	case p.VotingWindow <= 0 || p.VotingTimeout <= 0 || p.DecryptionTimeout <= 0:
		return fmt.Errorf("court: params: timeouts must be positive")
	case p.ObfuscationMultiplier == 0:
		return fmt.Errorf("court: params: obfuscation multiplier must be non-zero")
	case p.TransferTimeout <= 0:
		return fmt.Errorf("court: params: transfer timeout must be positive")
	case p.WinnerReward < 0 || p.LoserPenalty < 0 || p.ArbitratorReward < 0:
		return fmt.Errorf("court: params: rewards must not be negative")
	}
	return nil
}

// maxEscrow is the largest escrow whose obfuscated form fits in a uint64.
func (p Params) maxEscrow() uint64 {
	return math.MaxUint64 / p.ObfuscationMultiplier
}

func (p Params) retryDelay() time.Duration {
	if floor := 2 * p.TransferTimeout; p.PayoutRetryDelay < floor {
		return floor
	}
	return p.PayoutRetryDelay
}
