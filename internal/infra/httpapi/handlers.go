package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"payment_scheduler/internal/app"
	"payment_scheduler/internal/domain/payment"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ScheduleService is the schedule surface the API exposes.
type ScheduleService interface {
	CreateSchedule(ctx context.Context, req app.TransferRequest, dec app.ScheduleDecision) (*payment.ScheduledPayment, error)
	ListSchedules(ctx context.Context, ownerID int64) ([]*payment.ScheduledPayment, error)
	GetReadyPayments(ctx context.Context, ownerID *int64) ([]*payment.ScheduledPayment, error)
	CancelSchedule(ctx context.Context, ownerID int64, scheduleID string) (bool, error)
}

// TickRunner triggers ticks on demand.
type TickRunner interface {
	RunTick(ctx context.Context) app.TickSummary
	RunConditionalTick(ctx context.Context) app.TickSummary
}

// BalanceVerifier is the read-only funds precheck.
type BalanceVerifier interface {
	VerifyBalance(ctx context.Context, address string, amount decimal.Decimal) (app.BalanceCheck, error)
}

type Handler struct {
	schedules   ScheduleService
	ticks       TickRunner
	balances    BalanceVerifier
	tickTimeout time.Duration
	logger      logrus.FieldLogger
}

func NewHandler(schedules ScheduleService, ticks TickRunner, balances BalanceVerifier, tickTimeout time.Duration, logger logrus.FieldLogger) *Handler {
	return &Handler{
		schedules:   schedules,
		ticks:       ticks,
		balances:    balances,
		tickTimeout: tickTimeout,
		logger:      logger,
	}
}

// CreateScheduleRequest is the body of POST /api/schedules.
type CreateScheduleRequest struct {
	OwnerID          int64           `json:"owner_id"`
	RecipientAddress string          `json:"recipient_address"`
	Amount           decimal.Decimal `json:"amount"`
	app.ScheduleDecision
}

// ScheduleView is the JSON shape of a schedule entry.
type ScheduleView struct {
	ID                  string     `json:"id"`
	OwnerID             int64      `json:"owner_id"`
	PaymentType         string     `json:"payment_type"`
	RecipientAddress    string     `json:"recipient_address"`
	Amount              string     `json:"amount"`
	Frequency           string     `json:"frequency,omitempty"`
	ConditionExpression string     `json:"condition_expression,omitempty"`
	StartDate           *time.Time `json:"start_date,omitempty"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	MaxExecutions       *int32     `json:"max_executions,omitempty"`
	NextExecutionDate   *time.Time `json:"next_execution_date"`
	LastExecutionDate   *time.Time `json:"last_execution_date,omitempty"`
	ExecutionCount      int        `json:"execution_count"`
	Status              string     `json:"status"`
	LastError           string     `json:"last_error,omitempty"`
	LastTransactionID   string     `json:"last_transaction_id,omitempty"`
	PendingTransaction  string     `json:"pending_transaction_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func NewScheduleView(p *payment.ScheduledPayment) ScheduleView {
	v := ScheduleView{
		ID:                  p.ID,
		OwnerID:             p.OwnerID,
		PaymentType:         string(p.Type),
		RecipientAddress:    p.RecipientAddress,
		Amount:              p.Amount.String(),
		Frequency:           string(p.Frequency()),
		ConditionExpression: p.ConditionExpression(),
		ExecutionCount:      p.ExecutionCount,
		Status:              string(p.Status),
		LastError:           p.LastError.String,
		LastTransactionID:   p.LastTransactionID.String,
		PendingTransaction:  p.PendingTransactionID.String,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
	if p.Window.StartDate.Valid {
		v.StartDate = &p.Window.StartDate.Time
	}
	if p.Window.EndDate.Valid {
		v.EndDate = &p.Window.EndDate.Time
	}
	if p.Window.MaxExecutions.Valid {
		v.MaxExecutions = &p.Window.MaxExecutions.Int32
	}
	if p.NextExecutionDate.Valid {
		v.NextExecutionDate = &p.NextExecutionDate.Time
	}
	if p.LastExecutionDate.Valid {
		v.LastExecutionDate = &p.LastExecutionDate.Time
	}
	return v
}

func scheduleViews(ps []*payment.ScheduledPayment) []ScheduleView {
	views := make([]ScheduleView, 0, len(ps))
	for _, p := range ps {
		views = append(views, NewScheduleView(p))
	}
	return views
}

func (h *Handler) CreateSchedule(c *fiber.Ctx) error {
	var req CreateScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.OwnerID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid owner ID"})
	}

	p, err := h.schedules.CreateSchedule(c.UserContext(), app.TransferRequest{
		OwnerID:          req.OwnerID,
		RecipientAddress: req.RecipientAddress,
		Amount:           req.Amount,
	}, req.ScheduleDecision)
	if err != nil {
		if app.IsValidationError(err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		h.logger.WithError(err).Error("Failed to create schedule")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create schedule"})
	}

	return c.Status(fiber.StatusCreated).JSON(NewScheduleView(p))
}

func (h *Handler) ListSchedules(c *fiber.Ctx) error {
	ownerID, err := strconv.ParseInt(c.Params("ownerId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid owner ID"})
	}

	ps, err := h.schedules.ListSchedules(c.UserContext(), ownerID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(scheduleViews(ps))
}

func (h *Handler) CancelSchedule(c *fiber.Ctx) error {
	ownerID, err := strconv.ParseInt(c.Params("ownerId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid owner ID"})
	}

	removed, err := h.schedules.CancelSchedule(c.UserContext(), ownerID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Schedule not found"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) ReadyPayments(c *fiber.Ctx) error {
	var ownerID *int64
	if raw := c.Query("owner_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid owner ID"})
		}
		ownerID = &id
	}

	ps, err := h.schedules.GetReadyPayments(c.UserContext(), ownerID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(scheduleViews(ps))
}

func (h *Handler) RunTick(c *fiber.Ctx) error {
	return h.runTick(c, h.ticks.RunTick)
}

func (h *Handler) RunConditionalTick(c *fiber.Ctx) error {
	return h.runTick(c, h.ticks.RunConditionalTick)
}

func (h *Handler) runTick(c *fiber.Ctx, run func(context.Context) app.TickSummary) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.tickTimeout)
	defer cancel()

	summary := run(ctx)
	if summary.Error == app.ErrTickInProgress.Error() {
		return c.Status(fiber.StatusConflict).JSON(summary)
	}
	return c.JSON(summary)
}

func (h *Handler) VerifyBalance(c *fiber.Ctx) error {
	address := c.Query("address")
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil || !amount.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid amount"})
	}

	check, err := h.balances.VerifyBalance(c.UserContext(), address, amount)
	if err != nil {
		if errors.Is(err, app.ErrInvalidAddress) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(check)
}
