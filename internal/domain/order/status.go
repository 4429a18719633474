package order

import "fmt"

// Status is the closed set of order states. New states cannot appear without
// updating the transition table below.
type Status string

const (
	// StatusPending is the initial state: the order exists but payment has
	// not been reconciled. Cash-on-delivery orders stay here until an admin
	// advances them.
	StatusPending Status = "pending"
	// StatusConfirmed means payment was verified against the processor.
	StatusConfirmed Status = "confirmed"
	// StatusProcessing, StatusShipped and StatusDelivered are the
	// admin-driven fulfilment progression.
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	// StatusCancelled is an admin override from any pre-delivery state.
	StatusCancelled Status = "cancelled"
	// StatusRefunded is an admin override for shipped or delivered orders.
	StatusRefunded Status = "refunded"
	// StatusFailed means payment verification failed for this attempt.
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether s has no outgoing edges. Delivered is not
// terminal: it may still be refunded within the policy window.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded || s == StatusFailed
}

// transitions is the complete edge set. Reapplying the current status is
// always an idempotent no-op and is handled in CanTransitionTo, not here.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusFailed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled, StatusRefunded},
	StatusDelivered:  {StatusRefunded},
	StatusCancelled:  {},
	StatusRefunded:   {},
	StatusFailed:     {},
}

// CanTransitionTo reports whether the edge s -> next exists. The same-status
// edge always exists so that repeating a transition is a no-op, not an error.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports a status-machine violation. The order's
// state is left unmutated when this error is returned.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}
