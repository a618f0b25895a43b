package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"payment_scheduler/internal/domain/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Validation errors returned by CreateSchedule. No row is written when one is returned.
var (
	ErrInvalidAmount        = fmt.Errorf("amount must be greater than zero")
	ErrMissingRecipient     = fmt.Errorf("recipient address is required")
	ErrUnknownPaymentType   = fmt.Errorf("unknown payment type")
	ErrMissingFrequency     = fmt.Errorf("frequency is required for recurring payments")
	ErrUnknownFrequency     = fmt.Errorf("unknown frequency")
	ErrMissingCondition     = fmt.Errorf("condition expression is required for conditional payments")
	ErrInvalidMaxExecutions = fmt.Errorf("max executions must be between 1 and %d", math.MaxInt32)
	ErrInvalidDateRange     = fmt.Errorf("end date must be after start date")
)

var validationErrors = []error{
	ErrInvalidAmount,
	ErrMissingRecipient,
	ErrUnknownPaymentType,
	ErrMissingFrequency,
	ErrUnknownFrequency,
	ErrMissingCondition,
	ErrInvalidMaxExecutions,
	ErrInvalidDateRange,
}

// IsValidationError reports whether err was caused by a rejected schedule request.
func IsValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// TransferRequest is a validated transfer intent.
type TransferRequest struct {
	OwnerID          int64           `json:"owner_id"`
	RecipientAddress string          `json:"recipient_address"`
	Amount           decimal.Decimal `json:"amount"`
}

// ScheduleDecision says when and how often the transfer should run.
type ScheduleDecision struct {
	Type                payment.Type      `json:"payment_type"`
	Frequency           payment.Frequency `json:"frequency,omitempty"`
	ConditionExpression string            `json:"condition_expression,omitempty"`
	StartDate           *time.Time        `json:"start_date,omitempty"`
	EndDate             *time.Time        `json:"end_date,omitempty"`
	MaxExecutions       *int              `json:"max_executions,omitempty"`
	ExecuteImmediately  bool              `json:"execute_immediately,omitempty"`
}

// ScheduleService plans new schedule entries and exposes the store's query surface.
type ScheduleService struct {
	payments payment.Repository
	clock    Clock
	logger   logrus.FieldLogger
}

func NewScheduleService(payments payment.Repository, clock Clock, logger logrus.FieldLogger) *ScheduleService {
	return &ScheduleService{payments: payments, clock: clock, logger: logger}
}

// CreateSchedule turns a transfer request and a scheduling decision into an
// active entry. It performs exactly one insert and no network calls.
func (s *ScheduleService) CreateSchedule(ctx context.Context, req TransferRequest, dec ScheduleDecision) (*payment.ScheduledPayment, error) {
	if err := validateSchedule(req, dec); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	p := &payment.ScheduledPayment{
		ID:               uuid.NewString(),
		OwnerID:          req.OwnerID,
		Type:             dec.Type,
		RecipientAddress: strings.TrimSpace(req.RecipientAddress),
		Amount:           req.Amount,
		Status:           payment.StatusActive,
		Window: payment.Window{
			StartDate: nullTime(dec.StartDate),
			EndDate:   nullTime(dec.EndDate),
		},
	}
	if dec.MaxExecutions != nil {
		p.Window.MaxExecutions = sql.NullInt32{Int32: int32(*dec.MaxExecutions), Valid: true}
	}

	switch dec.Type {
	case payment.TypeRecurring:
		p.Recurring = &payment.RecurringConfig{Frequency: dec.Frequency}
	case payment.TypeConditional:
		p.Conditional = payment.NewConditionalConfig(dec.ConditionExpression)
		if !p.Conditional.Predicate.Supported() {
			s.logger.WithFields(logrus.Fields{
				"owner_id":  req.OwnerID,
				"condition": dec.ConditionExpression,
			}).Warn("Condition expression is not supported and will never be met")
		}
	}

	p.NextExecutionDate = sql.NullTime{Time: initialExecutionDate(dec, now), Valid: true}

	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to store schedule: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id":          p.ID,
		"owner_id":            p.OwnerID,
		"payment_type":        p.Type,
		"next_execution_date": p.NextExecutionDate.Time,
	}).Info("Schedule created")
	return p, nil
}

// initialExecutionDate applies the first-due-time precedence.
func initialExecutionDate(dec ScheduleDecision, now time.Time) time.Time {
	switch dec.Type {
	case payment.TypeRecurring:
		switch {
		case dec.ExecuteImmediately:
			return now
		case dec.StartDate != nil && dec.StartDate.After(now):
			return *dec.StartDate
		case dec.StartDate != nil:
			return now
		default:
			return payment.NextOccurrence(now, dec.Frequency)
		}
	case payment.TypeConditional:
		return now
	case payment.TypeSingle:
		if dec.StartDate != nil {
			return *dec.StartDate
		}
	}
	return now
}

func validateSchedule(req TransferRequest, dec ScheduleDecision) error {
	if !req.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(req.RecipientAddress) == "" {
		return ErrMissingRecipient
	}
	if !dec.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPaymentType, dec.Type)
	}
	if dec.Type == payment.TypeRecurring {
		if dec.Frequency == "" {
			return ErrMissingFrequency
		}
		if !dec.Frequency.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownFrequency, dec.Frequency)
		}
	}
	if dec.Type == payment.TypeConditional && strings.TrimSpace(dec.ConditionExpression) == "" {
		return ErrMissingCondition
	}
	if dec.MaxExecutions != nil && (*dec.MaxExecutions <= 0 || *dec.MaxExecutions > math.MaxInt32) {
		return ErrInvalidMaxExecutions
	}
	if dec.StartDate != nil && dec.EndDate != nil && !dec.EndDate.After(*dec.StartDate) {
		return ErrInvalidDateRange
	}
	return nil
}

// GetReadyPayments returns active entries due now, optionally for one owner.
func (s *ScheduleService) GetReadyPayments(ctx context.Context, ownerID *int64) ([]*payment.ScheduledPayment, error) {
	return s.payments.ListDue(ctx, s.clock.Now(), payment.DueFilter{OwnerID: ownerID})
}

// ListSchedules returns every entry of an owner.
func (s *ScheduleService) ListSchedules(ctx context.Context, ownerID int64) ([]*payment.ScheduledPayment, error) {
	return s.payments.ListByOwner(ctx, ownerID)
}

func (s *ScheduleService) GetSchedule(ctx context.Context, id string) (*payment.ScheduledPayment, error) {
	return s.payments.GetByID(ctx, id)
}

// CancelSchedule deletes an entry on behalf of its owner. It reports false when
// the entry does not exist or belongs to someone else.
func (s *ScheduleService) CancelSchedule(ctx context.Context, ownerID int64, scheduleID string) (bool, error) {
	removed, err := s.payments.Delete(ctx, scheduleID, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel schedule %s: %w", scheduleID, err)
	}
	if removed {
		s.logger.WithFields(logrus.Fields{"payment_id": scheduleID, "owner_id": ownerID}).Info("Schedule cancelled")
	}
	return removed, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
