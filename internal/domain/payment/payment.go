// internal/domain/payment/payment.go
package payment

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Type is the scheduling kind of a payment. It never changes after creation.
type Type string

const (
	TypeSingle      Type = "SINGLE"
	TypeRecurring   Type = "RECURRING"
	TypeConditional Type = "CONDITIONAL"
)

// Valid reports whether t is one of the known payment types.
func (t Type) Valid() bool {
	switch t {
	case TypeSingle, TypeRecurring, TypeConditional:
		return true
	}
	return false
}

// Status is the lifecycle state of a schedule entry.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further automatic processing happens in this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// RecurringConfig is present only on RECURRING payments.
type RecurringConfig struct {
	Frequency Frequency
}

// ConditionalConfig is present only on CONDITIONAL payments.
// Expression is the persisted form; Predicate is parsed from it once.
type ConditionalConfig struct {
	Expression string
	Predicate  Predicate
}

// NewConditionalConfig parses expression into its predicate.
func NewConditionalConfig(expression string) *ConditionalConfig {
	return &ConditionalConfig{Expression: expression, Predicate: ParsePredicate(expression)}
}

// Window holds the bounds shared by every payment type.
type Window struct {
	StartDate     sql.NullTime
	EndDate       sql.NullTime
	MaxExecutions sql.NullInt32
}

// EndPassed reports whether the end date is set and already elapsed at now.
func (w Window) EndPassed(now time.Time) bool {
	return w.EndDate.Valid && !w.EndDate.Time.After(now)
}

// ScheduledPayment is a persisted single, recurring or conditional transfer intent.
// Corresponds to the 'scheduled_payments' table.
type ScheduledPayment struct {
	ID                string
	OwnerID           int64
	Type              Type
	RecipientAddress  string
	Amount            decimal.Decimal
	Recurring         *RecurringConfig   // set iff Type == TypeRecurring
	Conditional       *ConditionalConfig // set iff Type == TypeConditional
	Window            Window
	NextExecutionDate sql.NullTime // NULL only once terminal
	LastExecutionDate sql.NullTime
	ExecutionCount    int
	Status            Status
	LastError         sql.NullString
	LastTransactionID sql.NullString
	// PendingTransactionID is a broadcast transfer whose receipt has not been seen yet.
	// While it is set no new transfer is signed for this entry.
	PendingTransactionID sql.NullString
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsReady is the readiness predicate used by the due query.
func (p *ScheduledPayment) IsReady(now time.Time) bool {
	return p.Status == StatusActive && p.NextExecutionDate.Valid && !p.NextExecutionDate.Time.After(now)
}

// Frequency returns the recurrence frequency, or "" for non-recurring payments.
func (p *ScheduledPayment) Frequency() Frequency {
	if p.Recurring == nil {
		return ""
	}
	return p.Recurring.Frequency
}

// ConditionExpression returns the raw condition string, or "" for non-conditional payments.
func (p *ScheduledPayment) ConditionExpression() string {
	if p.Conditional == nil {
		return ""
	}
	return p.Conditional.Expression
}
