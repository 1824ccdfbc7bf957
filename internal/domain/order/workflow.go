package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/fault"
)

// Update is an administrator's request to move an order. Status and
// PaymentStatus are raw values and are parsed case-insensitively.
type Update struct {
	OrderID       string
	Status        string
	PaymentStatus string
	Notes         *string
}

// Transition describes an applied update.
type Transition struct {
	OrderID       string
	OrderNumber   string
	From          Status
	To            Status
	PaymentStatus PaymentStatus
	// History is the appended audit entry, nil when the status did not
	// change.
	History   *StatusHistory
	ChangedAt time.Time
}

// StatusChanged reports whether the update moved the order to a new status.
func (t *Transition) StatusChanged() bool {
	return t.From != t.To
}

// Notifier is told about committed status changes.
type Notifier interface {
	StatusChanged(ctx context.Context, t Transition) error
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(w *Workflow)

// WithPolicy replaces the default transition table.
func WithPolicy(p TransitionPolicy) WorkflowOption {
	return func(w *Workflow) {
		w.policy = p
	}
}

// WithNotifier publishes committed status changes to n.
func WithNotifier(n Notifier) WorkflowOption {
	return func(w *Workflow) {
		w.notifier = n
	}
}

// Workflow applies status and payment status updates to orders and keeps the
// status history in step with them.
type Workflow struct {
	orders   Repository
	policy   TransitionPolicy
	notifier Notifier
	now      func() time.Time
	newID    func() string
}

// NewWorkflow creates a Workflow enforcing DefaultTransitions unless
// overridden.
func NewWorkflow(orders Repository, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		orders: orders,
		policy: DefaultTransitions,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// ApplyUpdate locks the order, validates u against it, writes the new
// statuses and notes, and appends a history entry when the status changed,
// all in one transaction. A missing order is reported before invalid values.
// Re-applying the current status updates payment status and notes only.
func (w *Workflow) ApplyUpdate(ctx context.Context, u Update) (*Transition, error) {
	var t *Transition
	err := w.orders.Transact(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockByID(ctx, u.OrderID)
		if err != nil {
			if errors.Is(err, ErrOrderNotFound) {
				return orderNotFound()
			}
			return errors.Wrap(err, "lock order")
		}

		to, ok := ParseStatus(u.Status)
		if !ok {
			return fault.New(fault.InvalidInput, ErrInvalidStatusValue,
				"%q is not a valid order status.", u.Status)
		}
		payment, ok := ParsePaymentStatus(u.PaymentStatus)
		if !ok {
			return fault.New(fault.InvalidInput, ErrInvalidStatusValue,
				"%q is not a valid payment status.", u.PaymentStatus)
		}

		from := o.Status
		if !w.policy.Allows(from, to) {
			return fault.New(fault.PolicyViolation, ErrTransitionNotAllowed,
				"Order %s cannot move from %s to %s.", o.OrderNumber, from, to)
		}

		now := w.now()
		if err := tx.Update(ctx, o.ID, Change{
			Status:        to,
			PaymentStatus: payment,
			Notes:         u.Notes,
			UpdatedAt:     now,
		}); err != nil {
			return errors.Wrap(err, "update order")
		}

		t = &Transition{
			OrderID:       o.ID,
			OrderNumber:   o.OrderNumber,
			From:          from,
			To:            to,
			PaymentStatus: payment,
			ChangedAt:     now,
		}
		if from == to {
			return nil
		}

		h := StatusHistory{
			ID:        w.newID(),
			OrderID:   o.ID,
			Status:    to,
			Notes:     "Status changed from " + string(from) + " to " + string(to),
			CreatedAt: now,
		}
		if err := tx.AppendHistory(ctx, h); err != nil {
			return errors.Wrap(err, "append history")
		}
		t.History = &h
		return nil
	})
	if err != nil {
		return nil, err
	}

	if t.StatusChanged() && w.notifier != nil {
		if err := w.notifier.StatusChanged(ctx, *t); err != nil {
			zctx.From(ctx).Warn("Failed to publish status change",
				zap.String("order_id", t.OrderID),
				zap.String("status", string(t.To)),
				zap.Error(err),
			)
		}
	}
	return t, nil
}
