package dispute

import (
	"slices"
	"time"

	"sealedcourt/account"
	"sealedcourt/ciphertext"
	"sealedcourt/oracle"
)

// Status represents the lifecycle of a dispute record.
type Status string

const (
	StatusCreated          Status = "created"
	StatusInArbitration    Status = "in_arbitration"
	StatusVoting           Status = "voting"
	StatusResolved         Status = "resolved"
	StatusDecryptionFailed Status = "decryption_failed"
	StatusCancelled        Status = "cancelled"
	StatusRefunded         Status = "refunded"
)

func (s Status) String() string { return string(s) }

// Refundable reports whether a manual refund claim may target the status.
func (s Status) Refundable() bool {
	switch s {
	case StatusDecryptionFailed, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// Dispute mirrors the disputes table. Handles are opaque; only EscrowAmount
// is kept in clear, for refunds.
type Dispute struct {
	ID                    uint64
	Plaintiff             account.Address
	Defendant             account.Address
	EncryptedStake        ciphertext.Handle
	EncryptedEvidence     ciphertext.Handle
	EncryptedEscrow       ciphertext.Handle
	EncryptedTally        ciphertext.Handle
	Status                Status
	CreatedAt             time.Time
	VotingDeadline        time.Time
	DecryptionRequestedAt time.Time
	Arbitrators           []account.Address
	EncryptedDecision     ciphertext.Handle
	DecisionRevealed      bool
	Winner                account.Address
	EscrowAmount          uint64
	RequestID             oracle.RequestID
	DecryptionInFlight    bool
	RefundProcessed       bool
	FailureReason         string
	UpdatedAt             time.Time
}

// IsParty reports whether addr is the plaintiff or the defendant.
func (d Dispute) IsParty(addr account.Address) bool {
	return !addr.IsZero() && (addr == d.Plaintiff || addr == d.Defendant)
}

// IsAssigned reports whether addr is one of the dispute's arbitrators.
func (d Dispute) IsAssigned(addr account.Address) bool {
	return slices.Contains(d.Arbitrators, addr)
}

// EscrowShare is the amount owed back to addr on failure. Escrow is posted
// by the plaintiff alone, so the defendant's share is zero.
func (d Dispute) EscrowShare(addr account.Address) uint64 {
	if addr == d.Plaintiff {
		return d.EscrowAmount
	}
	return 0
}

// Clone returns a deep copy safe to mutate.
func (d Dispute) Clone() Dispute {
	d.Arbitrators = slices.Clone(d.Arbitrators)
	return d
}

// Pending maps an oracle request to the dispute waiting on it.
type Pending struct {
	RequestID   oracle.RequestID
	DisputeID   uint64
	RequestedAt time.Time
	Consumed    bool
	ConsumedAt  time.Time
}
