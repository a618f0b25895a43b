package app

import (
	"context"
	"fmt"

	"payment_scheduler/internal/domain/payment"

	"github.com/shopspring/decimal"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")
var ErrScheduleNotFound = fmt.Errorf("schedule not found for this owner")

// AdminService gates operator actions behind the configured admin Telegram ID.
type AdminService struct {
	schedules       *ScheduleService
	ticker          *Ticker
	engine          *ExecutionEngine
	adminTelegramID int64
}

func NewAdminService(schedules *ScheduleService, ticker *Ticker, engine *ExecutionEngine, adminID int64) *AdminService {
	return &AdminService{
		schedules:       schedules,
		ticker:          ticker,
		engine:          engine,
		adminTelegramID: adminID,
	}
}

func (s *AdminService) authorize(performingAdminID int64) error {
	if performingAdminID != s.adminTelegramID {
		return ErrAdminNotAuthorized
	}
	return nil
}

// RunTick runs the general tick on demand.
func (s *AdminService) RunTick(ctx context.Context, performingAdminID int64) (TickSummary, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return TickSummary{}, err
	}
	return s.ticker.RunTick(ctx), nil
}

func (s *AdminService) RunConditionalTick(ctx context.Context, performingAdminID int64) (TickSummary, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return TickSummary{}, err
	}
	return s.ticker.RunConditionalTick(ctx), nil
}

// ReadyPayments lists due entries, for one owner when ownerID is set.
func (s *AdminService) ReadyPayments(ctx context.Context, performingAdminID int64, ownerID *int64) ([]*payment.ScheduledPayment, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.schedules.GetReadyPayments(ctx, ownerID)
}

func (s *AdminService) VerifyBalance(ctx context.Context, performingAdminID int64, address string, amount decimal.Decimal) (BalanceCheck, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return BalanceCheck{}, err
	}
	return s.engine.VerifyBalance(ctx, address, amount)
}

// CancelSchedule removes an entry on the owner's behalf.
func (s *AdminService) CancelSchedule(ctx context.Context, performingAdminID, ownerID int64, scheduleID string) error {
	if err := s.authorize(performingAdminID); err != nil {
		return err
	}
	removed, err := s.schedules.CancelSchedule(ctx, ownerID, scheduleID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrScheduleNotFound
	}
	return nil
}
