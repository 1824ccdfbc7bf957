package order

import (
	"strings"
)

// Status is the fulfillment stage of an order.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// Statuses lists every order status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
	StatusRefunded,
}

// ParseStatus parses s case-insensitively.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// PaymentStatus tracks payment independently of fulfillment.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentPaid              PaymentStatus = "PAID"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// PaymentStatuses lists every payment status.
var PaymentStatuses = []PaymentStatus{
	PaymentPending,
	PaymentPaid,
	PaymentFailed,
	PaymentRefunded,
	PaymentPartiallyRefunded,
}

// ParsePaymentStatus parses s case-insensitively.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	ps := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range PaymentStatuses {
		if ps == known {
			return ps, true
		}
	}
	return "", false
}

// TransitionPolicy decides whether an order may move between two statuses.
type TransitionPolicy interface {
	Allows(from, to Status) bool
}

// TransitionTable maps a status to the statuses reachable from it. Staying in
// the same status is always allowed.
type TransitionTable map[Status][]Status

// Allows implements TransitionPolicy.
func (t TransitionTable) Allows(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DefaultTransitions is the forward-only fulfillment lifecycle. Cancelled and
// delivered orders can only be refunded; refunded orders are final.
var DefaultTransitions = TransitionTable{
	StatusPending:    {StatusConfirmed, StatusProcessing, StatusShipped, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusShipped, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusRefunded},
	StatusCancelled:  {StatusRefunded},
	StatusRefunded:   nil,
}

type anyTransition struct{}

func (anyTransition) Allows(Status, Status) bool { return true }

// AnyTransition accepts every status change, matching stores that only
// check enum membership.
var AnyTransition TransitionPolicy = anyTransition{}
