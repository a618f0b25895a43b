package app

import (
	"context"
	"fmt"

	"payment_scheduler/internal/domain/payment"

	"github.com/sirupsen/logrus"
)

// StateUpdater persists the status and timing that follow an attempt.
// The transition itself is payment.ApplyOutcome; this service only loads and saves.
type StateUpdater struct {
	payments payment.Repository
	clock    Clock
	logger   logrus.FieldLogger
}

func NewStateUpdater(payments payment.Repository, clock Clock, logger logrus.FieldLogger) *StateUpdater {
	return &StateUpdater{payments: payments, clock: clock, logger: logger}
}

// UpdateAfterExecution applies an attempt's outcome. Reporting the same transfer
// twice counts it twice. Terminal entries are left untouched.
func (u *StateUpdater) UpdateAfterExecution(ctx context.Context, paymentID string, o payment.Outcome) (*payment.ScheduledPayment, error) {
	return u.mutate(ctx, paymentID, func(p *payment.ScheduledPayment) {
		p.ApplyOutcome(o, u.clock.Now())
	})
}

// Defer reschedules an entry after an error that is not the payment's fault,
// such as an unrecoverable signing key.
func (u *StateUpdater) Defer(ctx context.Context, paymentID, reason string) (*payment.ScheduledPayment, error) {
	return u.mutate(ctx, paymentID, func(p *payment.ScheduledPayment) {
		p.Defer(reason, u.clock.Now())
	})
}

func (u *StateUpdater) mutate(ctx context.Context, paymentID string, apply func(*payment.ScheduledPayment)) (*payment.ScheduledPayment, error) {
	p, err := u.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}
	log := u.logger.WithFields(logrus.Fields{"payment_id": p.ID, "payment_type": p.Type})

	if p.Status.Terminal() {
		log.WithField("status", p.Status).Warn("Ignoring state update for terminal payment")
		return p, nil
	}

	before := p.Status
	apply(p)

	if err := u.payments.UpdateState(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to persist payment %s: %w", paymentID, err)
	}

	fields := logrus.Fields{
		"status_before":   before,
		"status":          p.Status,
		"execution_count": p.ExecutionCount,
	}
	if p.NextExecutionDate.Valid {
		fields["next_execution_date"] = p.NextExecutionDate.Time
	}
	log.WithFields(fields).Info("Payment state updated")
	return p, nil
}
