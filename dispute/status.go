package dispute

import "fmt"

var transitions = map[Status][]Status{
	StatusCreated:       {StatusInArbitration},
	StatusInArbitration: {StatusVoting, StatusCancelled},
	StatusVoting:        {StatusResolved, StatusDecryptionFailed},
	// A voting timeout cancels and then fails within the same operation.
	StatusCancelled:        {StatusDecryptionFailed, StatusRefunded},
	StatusDecryptionFailed: {StatusRefunded},
}

// CanTransition validates a lifecycle edge. Staying in place is never a
// transition.
func CanTransition(from, to Status) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrBadStatus, from, to)
}

// Transition moves d to next after validating the edge.
func (d *Dispute) Transition(next Status) error {
	if err := CanTransition(d.Status, next); err != nil {
		return err
	}
	d.Status = next
	return nil
}
