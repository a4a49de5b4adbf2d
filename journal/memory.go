package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRow struct {
	msg          Message
	processed    bool
	deadLettered bool
	lastError    string
}

// Recorder is an in-process Store. It keeps every event for inspection.
type Recorder struct {
	mu   sync.Mutex
	rows []*memoryRow
	byID map[uuid.UUID]*memoryRow
}

func NewRecorder() *Recorder {
	return &Recorder{byID: make(map[uuid.UUID]*memoryRow)}
}

func (r *Recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := &memoryRow{msg: Message{Event: ev}}
	r.rows = append(r.rows, row)
	r.byID[ev.ID] = row
	return nil
}

func (r *Recorder) Claim(_ context.Context, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Message, 0, limit)
	for _, row := range r.rows {
		if len(out) >= limit {
			break
		}
		if row.processed || row.deadLettered {
			continue
		}
		out = append(out, row.msg)
	}
	return out, nil
}

func (r *Recorder) MarkProcessed(_ context.Context, id uuid.UUID, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if row, ok := r.byID[id]; ok {
		row.msg.Attempts++
		row.processed = true
	}
	return nil
}

func (r *Recorder) MarkFailed(_ context.Context, id uuid.UUID, reason string, deadLetter bool, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if row, ok := r.byID[id]; ok {
		row.msg.Attempts++
		row.lastError = reason
		row.deadLettered = deadLetter
	}
	return nil
}

// Events returns every recorded event in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.rows))
	for i, row := range r.rows {
		out[i] = row.msg.Event
	}
	return out
}

// Topic returns recorded events with the given topic, optionally filtered
// to one dispute (zero matches all).
func (r *Recorder) Topic(topic string, disputeID uint64) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, row := range r.rows {
		if row.msg.Topic != topic {
			continue
		}
		if disputeID != 0 && row.msg.DisputeID != disputeID {
			continue
		}
		out = append(out, row.msg.Event)
	}
	return out
}

// DeadLettered counts messages the relay gave up on.
func (r *Recorder) DeadLettered() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, row := range r.rows {
		if row.deadLettered {
			n++
		}
	}
	return n
}
