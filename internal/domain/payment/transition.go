package payment

import (
	"database/sql"
	"time"
)

const (
	// RetryDelay is the re-attempt delay after a failed recurring run and after
	// infrastructure errors that leave the entry active.
	RetryDelay = 5 * time.Minute
	// InsufficientBalanceRecheckDelay applies to conditional entries that failed for lack of funds.
	InsufficientBalanceRecheckDelay = 5 * time.Minute
	// ConditionRecheckDelay applies to conditional entries whose condition was not met.
	ConditionRecheckDelay = time.Minute
	// PendingRecheckDelay is how soon an unconfirmed transfer's receipt is looked up again.
	PendingRecheckDelay = time.Minute
)

// ApplyOutcome advances status, timing and counters after an attempt.
//
// Resolution order: execution cap, then the per-type policy, then the end
// date, which overrides everything else. A pending transfer bypasses all three:
// the entry stays active until the transaction's receipt settles it.
func (p *ScheduledPayment) ApplyOutcome(o Outcome, now time.Time) {
	if o.Pending && o.TransactionID != "" {
		p.scheduleAt(now.Add(PendingRecheckDelay))
		p.PendingTransactionID = sql.NullString{String: o.TransactionID, Valid: true}
		p.LastTransactionID = p.PendingTransactionID
		p.LastError = nullString(o.Error)
		p.UpdatedAt = now
		return
	}

	increment := 0
	if o.Executed {
		increment = 1
	}

	switch {
	case p.Window.MaxExecutions.Valid && p.ExecutionCount+increment >= int(p.Window.MaxExecutions.Int32):
		p.complete()
	case p.Type == TypeRecurring:
		if o.Executed {
			p.scheduleAt(NextOccurrence(now, p.Frequency()))
		} else {
			p.scheduleAt(now.Add(RetryDelay))
		}
	case p.Type == TypeConditional:
		switch {
		case o.Executed:
			p.complete()
		case IsInsufficientBalance(o.Error):
			p.scheduleAt(now.Add(InsufficientBalanceRecheckDelay))
		default:
			p.scheduleAt(now.Add(ConditionRecheckDelay))
		}
	default:
		if o.Executed {
			p.complete()
		} else {
			p.Status = StatusFailed
			p.NextExecutionDate = sql.NullTime{}
		}
	}

	if p.Window.EndPassed(now) {
		p.complete()
	}

	if o.Executed {
		p.ExecutionCount++
		p.LastExecutionDate = sql.NullTime{Time: now, Valid: true}
	}
	if o.TransactionID != "" {
		p.LastTransactionID = sql.NullString{String: o.TransactionID, Valid: true}
	}
	p.PendingTransactionID = sql.NullString{}
	p.LastError = nullString(o.Error)
	p.UpdatedAt = now
}

// Defer pushes an active entry back by RetryDelay without counting an attempt.
// Used when the failure is not attributable to the payment itself.
func (p *ScheduledPayment) Defer(reason string, now time.Time) {
	if p.Status == StatusActive {
		p.scheduleAt(now.Add(RetryDelay))
	}
	if p.Window.EndPassed(now) {
		p.complete()
	}
	p.LastError = nullString(reason)
	p.UpdatedAt = now
}

func (p *ScheduledPayment) complete() {
	p.Status = StatusCompleted
	p.NextExecutionDate = sql.NullTime{}
}

func (p *ScheduledPayment) scheduleAt(t time.Time) {
	p.Status = StatusActive
	p.NextExecutionDate = sql.NullTime{Time: t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
