package main

import (
	"time"

	"sealedcourt/arbitrator"
	"sealedcourt/dispute"
)

type arbitratorResponse struct {
	Address            string `json:"address"`
	Active             bool   `json:"active"`
	Reputation         int64  `json:"reputation"`
	TotalDisputes      int64  `json:"totalDisputes"`
	SuccessfulDisputes int64  `json:"successfulDisputes"`
	Verified           bool   `json:"verified"`
	RegisteredAt       string `json:"registeredAt"`
}

func toArbitratorResponse(p arbitrator.Profile) arbitratorResponse {
	return arbitratorResponse{
		Address:            p.Address.String(),
		Active:             p.Active,
		Reputation:         p.Reputation,
		TotalDisputes:      p.TotalDisputes,
		SuccessfulDisputes: p.SuccessfulDisputes,
		Verified:           p.Verified,
		RegisteredAt:       p.RegisteredAt.Format(time.RFC3339),
	}
}

type disputeResponse struct {
	ID                    uint64   `json:"id"`
	Plaintiff             string   `json:"plaintiff"`
	Defendant             string   `json:"defendant"`
	Status                string   `json:"status"`
	CreatedAt             string   `json:"createdAt"`
	VotingDeadline        string   `json:"votingDeadline,omitempty"`
	DecryptionRequestedAt string   `json:"decryptionRequestedAt,omitempty"`
	Arbitrators           []string `json:"arbitrators"`
	DecisionRevealed      bool     `json:"decisionRevealed"`
	Winner                string   `json:"winner,omitempty"`
	Escrow                uint64   `json:"escrow"`
	DecryptionInFlight    bool     `json:"decryptionInFlight"`
	RefundProcessed       bool     `json:"refundProcessed"`
	FailureReason         string   `json:"failureReason,omitempty"`
}

func toDisputeResponse(d dispute.Dispute) disputeResponse {
	arbs := make([]string, len(d.Arbitrators))
	for i, a := range d.Arbitrators {
		arbs[i] = a.String()
	}
	return disputeResponse{
		ID:                    d.ID,
		Plaintiff:             d.Plaintiff.String(),
		Defendant:             d.Defendant.String(),
		Status:                d.Status.String(),
		CreatedAt:             d.CreatedAt.Format(time.RFC3339),
		VotingDeadline:        formatTime(d.VotingDeadline),
		DecryptionRequestedAt: formatTime(d.DecryptionRequestedAt),
		Arbitrators:           arbs,
		DecisionRevealed:      d.DecisionRevealed,
		Winner:                d.Winner.String(),
		Escrow:                d.EscrowAmount,
		DecryptionInFlight:    d.DecryptionInFlight,
		RefundProcessed:       d.RefundProcessed,
		FailureReason:         d.FailureReason,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
