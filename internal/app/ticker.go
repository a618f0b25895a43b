package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"payment_scheduler/internal/domain/payment"

	"github.com/sirupsen/logrus"
)

var ErrTickInProgress = fmt.Errorf("tick already running")

// PaymentExecutor runs a single on-chain attempt.
type PaymentExecutor interface {
	Execute(ctx context.Context, p *payment.ScheduledPayment, authorization string) payment.ExecutionResult
	Reconcile(ctx context.Context, p *payment.ScheduledPayment) payment.ExecutionResult
}

// ConditionChecker decides whether a conditional entry may fire now.
type ConditionChecker interface {
	Evaluate(ctx context.Context, p *payment.ScheduledPayment) (ConditionCheck, error)
}

// AuthorizationSource recovers the signing material of an owner.
type AuthorizationSource interface {
	Authorization(ctx context.Context, ownerID int64) (string, error)
}

// ReceiptRecorder runs the best-effort side effects of an attempt.
type ReceiptRecorder interface {
	RecordTransfer(ctx context.Context, p *payment.ScheduledPayment, result payment.ExecutionResult)
	NotifyFailure(ctx context.Context, p *payment.ScheduledPayment, result payment.ExecutionResult)
}

// Locker hands out short-lived exclusive leases. acquired is false when someone
// else holds key; release is nil in that case.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// TickKind names the cadence a tick belongs to.
type TickKind string

const (
	TickGeneral     TickKind = "general"
	TickConditional TickKind = "conditional"
)

// PaymentOutcome is what a tick did with one due entry.
type PaymentOutcome struct {
	PaymentID     string                  `json:"payment_id"`
	Type          payment.Type            `json:"payment_type"`
	Executed      bool                    `json:"executed"`
	Skipped       bool                    `json:"skipped,omitempty"`
	TransactionID string                  `json:"transaction_id,omitempty"`
	Status        payment.ExecutionStatus `json:"status,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// TickSummary is returned by every tick, scheduled or manual.
type TickSummary struct {
	Kind       TickKind         `json:"kind"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Processed  int              `json:"processed"`
	Outcomes   []PaymentOutcome `json:"outcomes"`
	Error      string           `json:"error,omitempty"`
}

// Ticker processes due schedule entries. Each tick handles its batch
// sequentially so a sending account never has two transfers in flight.
type Ticker struct {
	payments  payment.Repository
	evaluator ConditionChecker
	executor  PaymentExecutor
	updater   *StateUpdater
	keys      AuthorizationSource
	receipts  ReceiptRecorder
	locker    Locker
	clock     Clock
	leaseTTL  time.Duration
	logger    logrus.FieldLogger

	generalRunning     atomic.Bool
	conditionalRunning atomic.Bool
}

func NewTicker(
	payments payment.Repository,
	evaluator ConditionChecker,
	executor PaymentExecutor,
	updater *StateUpdater,
	keys AuthorizationSource,
	receipts ReceiptRecorder,
	locker Locker,
	clock Clock,
	leaseTTL time.Duration,
	logger logrus.FieldLogger,
) *Ticker {
	return &Ticker{
		payments:  payments,
		evaluator: evaluator,
		executor:  executor,
		updater:   updater,
		keys:      keys,
		receipts:  receipts,
		locker:    locker,
		clock:     clock,
		leaseTTL:  leaseTTL,
		logger:    logger,
	}
}

// RunTick processes due SINGLE and RECURRING entries.
func (t *Ticker) RunTick(ctx context.Context) TickSummary {
	return t.run(ctx, TickGeneral, &t.generalRunning,
		[]payment.Type{payment.TypeSingle, payment.TypeRecurring})
}

// RunConditionalTick evaluates due CONDITIONAL entries and executes the ones whose condition holds.
func (t *Ticker) RunConditionalTick(ctx context.Context) TickSummary {
	return t.run(ctx, TickConditional, &t.conditionalRunning,
		[]payment.Type{payment.TypeConditional})
}

func (t *Ticker) run(ctx context.Context, kind TickKind, running *atomic.Bool, types []payment.Type) TickSummary {
	summary := TickSummary{Kind: kind, StartedAt: t.clock.Now(), Outcomes: []PaymentOutcome{}}
	log := t.logger.WithField("tick", kind)

	if !running.CompareAndSwap(false, true) {
		log.Warn("Previous tick is still running, skipping")
		summary.Error = ErrTickInProgress.Error()
		summary.FinishedAt = t.clock.Now()
		return summary
	}
	defer running.Store(false)

	due, err := t.payments.ListDue(ctx, summary.StartedAt, payment.DueFilter{Types: types})
	if err != nil {
		log.WithError(err).Error("Failed to fetch due payments")
		summary.Error = fmt.Sprintf("fetch due payments: %v", err)
		summary.FinishedAt = t.clock.Now()
		return summary
	}
	if len(due) > 0 {
		log.WithField("count", len(due)).Info("Processing due payments")
	}

	for _, p := range due {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("Tick cancelled, leaving remaining payments for the next run")
			summary.Error = fmt.Sprintf("tick interrupted: %v", ctx.Err())
			break
		}
		outcome := t.processSafely(ctx, log, p)
		if !outcome.Skipped {
			summary.Processed++
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
	}

	summary.FinishedAt = t.clock.Now()
	log.WithFields(logrus.Fields{
		"processed": summary.Processed,
		"duration":  summary.FinishedAt.Sub(summary.StartedAt).String(),
	}).Debug("Tick finished")
	return summary
}

// processSafely keeps a panic in one payment from aborting the rest of the tick.
func (t *Ticker) processSafely(ctx context.Context, log *logrus.Entry, p *payment.ScheduledPayment) (outcome PaymentOutcome) {
	outcome = PaymentOutcome{PaymentID: p.ID, Type: p.Type}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("payment_id", p.ID).Errorf("Recovered from panic while processing payment: %v", r)
			outcome.Executed = false
			outcome.Error = fmt.Sprintf("panic: %v", r)
		}
	}()
	return t.process(ctx, log.WithFields(logrus.Fields{"payment_id": p.ID, "owner_id": p.OwnerID}), p)
}

func (t *Ticker) process(ctx context.Context, log *logrus.Entry, due *payment.ScheduledPayment) PaymentOutcome {
	outcome := PaymentOutcome{PaymentID: due.ID, Type: due.Type}

	release, acquired, err := t.locker.Acquire(ctx, "payment:"+due.ID, t.leaseTTL)
	if err != nil {
		log.WithError(err).Error("Failed to acquire payment lease")
		outcome.Skipped = true
		outcome.Error = fmt.Sprintf("acquire lease: %v", err)
		return outcome
	}
	if !acquired {
		log.Debug("Payment is leased by another worker, skipping")
		outcome.Skipped = true
		return outcome
	}
	defer release()

	// The due list may be stale by the time the lease is ours.
	p, err := t.payments.GetByID(ctx, due.ID)
	if err != nil {
		log.WithError(err).Error("Failed to reload payment")
		outcome.Error = fmt.Sprintf("reload payment: %v", err)
		return outcome
	}
	now := t.clock.Now()
	if !p.IsReady(now) {
		log.Debug("Payment is no longer ready, skipping")
		outcome.Skipped = true
		return outcome
	}
	if p.PendingTransactionID.Valid {
		// Settle the earlier broadcast before anything new is signed.
		return t.finish(ctx, log, p, outcome, t.executor.Reconcile(ctx, p))
	}
	if p.Window.EndPassed(now) {
		outcome.Error = fmt.Sprintf("schedule ended at %s", p.Window.EndDate.Time.Format(time.RFC3339))
		log.Info("Payment window has ended, completing without a transfer")
		t.update(ctx, log, p.ID, payment.Outcome{Error: outcome.Error})
		return outcome
	}

	if p.Type == payment.TypeConditional {
		check, err := t.evaluator.Evaluate(ctx, p)
		if err != nil {
			log.WithError(err).Warn("Failed to evaluate payment condition")
			outcome.Error = fmt.Sprintf("condition evaluation failed: %v", err)
			t.update(ctx, log, p.ID, payment.Outcome{Error: outcome.Error})
			return outcome
		}
		if !check.Met {
			outcome.Error = fmt.Sprintf("condition not met: %s (balance %s)", p.ConditionExpression(), check.Balance)
			log.WithField("predicate", check.Predicate.String()).Debug("Payment condition not met")
			t.update(ctx, log, p.ID, payment.Outcome{Error: outcome.Error})
			return outcome
		}
	}

	authorization, err := t.keys.Authorization(ctx, p.OwnerID)
	if err != nil {
		log.WithError(err).Error("Failed to recover signing key, deferring payment")
		outcome.Error = fmt.Sprintf("signing key unavailable: %v", err)
		if _, err := t.updater.Defer(ctx, p.ID, outcome.Error); err != nil {
			log.WithError(err).Error("Failed to defer payment")
		}
		return outcome
	}

	return t.finish(ctx, log, p, outcome, t.executor.Execute(ctx, p, authorization))
}

// finish runs receipts for a settled result and persists the outcome.
// A pending transfer gets neither a receipt nor a failure notice yet.
func (t *Ticker) finish(ctx context.Context, log *logrus.Entry, p *payment.ScheduledPayment, outcome PaymentOutcome, result payment.ExecutionResult) PaymentOutcome {
	outcome.Executed = result.Success
	outcome.TransactionID = result.TransactionID
	outcome.Status = result.Status
	outcome.Error = result.Error

	switch {
	case result.Success:
		t.receipts.RecordTransfer(ctx, p, result)
	case result.Status != payment.ExecutionPending:
		t.receipts.NotifyFailure(ctx, p, result)
	}

	t.update(ctx, log, p.ID, payment.OutcomeOf(result))
	return outcome
}

func (t *Ticker) update(ctx context.Context, log *logrus.Entry, paymentID string, o payment.Outcome) {
	if _, err := t.updater.UpdateAfterExecution(ctx, paymentID, o); err != nil {
		log.WithError(err).Error("Failed to update payment state")
	}
}
