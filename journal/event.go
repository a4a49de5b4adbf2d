// Package journal records every court notification in a transactional
// outbox and relays it to downstream consumers.
package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Topics emitted by the court.
const (
	TopicArbitratorRegistered = "arbitrator.registered"
	TopicArbitratorPaused     = "arbitrator.paused"
	TopicArbitratorUnpaused   = "arbitrator.unpaused"
	TopicDisputeCreated       = "dispute.created"
	TopicArbitratorsAssigned  = "dispute.arbitrators_assigned"
	TopicVoteSubmitted        = "dispute.vote_submitted"
	TopicDecryptionRequested  = "dispute.decryption_requested"
	TopicDecryptionFailed     = "dispute.decryption_failed"
	TopicDisputeResolved      = "dispute.resolved"
	TopicTimeoutTriggered     = "dispute.timeout_triggered"
	TopicRefundIssued         = "refund.issued"
	TopicRefundFailed         = "refund.failed"
	TopicRefundWithdrawn      = "refund.withdrawn"
	TopicEscrowReleased       = "escrow.released"
	TopicReputationUpdated    = "reputation.updated"
)

// Event is one outbox entry. DisputeID is zero for events not tied to a dispute.
type Event struct {
	ID         uuid.UUID
	Topic      string
	DisputeID  uint64
	Payload    map[string]any
	OccurredAt time.Time
}

// New builds an event with a fresh id.
func New(topic string, disputeID uint64, at time.Time, payload map[string]any) Event {
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	return Event{
		ID:         uuid.New(),
		Topic:      topic,
		DisputeID:  disputeID,
		Payload:    payload,
		OccurredAt: at.UTC(),
	}
}

// Body is the JSON document published downstream.
func (e Event) Body() ([]byte, error) {
	return json.Marshal(map[string]any{
		"id":          e.ID.String(),
		"topic":       e.Topic,
		"dispute_id":  e.DisputeID,
		"payload":     e.Payload,
		"occurred_at": e.OccurredAt,
	})
}

// Emitter appends events to the outbox. Emit joins the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// Message is an outbox row awaiting delivery.
type Message struct {
	Event
	Attempts int
}

// Store is the outbox as seen by the relay.
type Store interface {
	Emitter
	// Claim returns up to limit undelivered messages, oldest first. Inside a
	// transaction the rows stay locked until commit.
	Claim(ctx context.Context, limit int) ([]Message, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, deadLetter bool, at time.Time) error
}
