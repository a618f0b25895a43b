package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"payment_scheduler/internal/app"
	"payment_scheduler/internal/domain/payment"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const unauthorizedReply = "Error: you are not allowed to run this command."

// AdminOperations is what the operator commands need from the application layer.
type AdminOperations interface {
	RunTick(ctx context.Context, performingAdminID int64) (app.TickSummary, error)
	RunConditionalTick(ctx context.Context, performingAdminID int64) (app.TickSummary, error)
	ReadyPayments(ctx context.Context, performingAdminID int64, ownerID *int64) ([]*payment.ScheduledPayment, error)
	VerifyBalance(ctx context.Context, performingAdminID int64, address string, amount decimal.Decimal) (app.BalanceCheck, error)
	CancelSchedule(ctx context.Context, performingAdminID, ownerID int64, scheduleID string) error
}

// RegisterAdminHandlers registers handlers for admin commands.
// It requires the bot instance, admin service, and the configured admin Telegram ID.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService AdminOperations, adminTelegramID int64, tickTimeout time.Duration, baseLogger *logrus.Entry) {
	h := &adminHandlers{
		ctx:             ctx,
		admin:           adminService,
		adminTelegramID: adminTelegramID,
		tickTimeout:     tickTimeout,
		logger:          baseLogger,
	}

	b.Handle("/run_tick", h.runTick)
	b.Handle("/run_conditional_tick", h.runConditionalTick)
	b.Handle("/ready", h.ready)
	b.Handle("/verify_balance", h.verifyBalance)
	b.Handle("/cancel", h.cancel)
}

type adminHandlers struct {
	ctx             context.Context
	admin           AdminOperations
	adminTelegramID int64
	tickTimeout     time.Duration
	logger          *logrus.Entry
}

// begin logs the command and rejects anyone but the admin.
func (h *adminHandlers) begin(c telebot.Context, command string) (*logrus.Entry, bool) {
	handlerLogger := h.logger.WithFields(logrus.Fields{
		"handler":   command,
		"sender_id": c.Sender().ID,
	})
	handlerLogger.Info("Command received")

	if c.Sender().ID != h.adminTelegramID {
		handlerLogger.Warn("Unauthorized access attempt")
		return handlerLogger, false
	}
	return handlerLogger, true
}

func (h *adminHandlers) runTick(c telebot.Context) error {
	return h.tick(c, "/run_tick", h.admin.RunTick)
}

func (h *adminHandlers) runConditionalTick(c telebot.Context) error {
	return h.tick(c, "/run_conditional_tick", h.admin.RunConditionalTick)
}

func (h *adminHandlers) tick(c telebot.Context, command string, run func(context.Context, int64) (app.TickSummary, error)) error {
	handlerLogger, ok := h.begin(c, command)
	if !ok {
		return c.Send(unauthorizedReply)
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.tickTimeout)
	defer cancel()

	summary, err := run(ctx, c.Sender().ID)
	if err != nil {
		handlerLogger.WithError(err).Error("Tick failed")
		return c.Send(fmt.Sprintf("Tick failed: %s", err.Error()))
	}

	handlerLogger.WithFields(logrus.Fields{
		"processed": summary.Processed,
		"error":     summary.Error,
	}).Info("Tick triggered from chat")
	return c.Send(FormatTickSummary(summary))
}

func (h *adminHandlers) ready(c telebot.Context) error {
	handlerLogger, ok := h.begin(c, "/ready")
	if !ok {
		return c.Send(unauthorizedReply)
	}

	// Expected format: /ready [OwnerID]
	args := c.Args()
	if len(args) > 1 {
		return c.Send("Invalid command format. Use: /ready [OwnerID]")
	}
	var ownerID *int64
	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("Error: owner ID must be a number.")
		}
		ownerID = &id
	}

	due, err := h.admin.ReadyPayments(h.ctx, c.Sender().ID, ownerID)
	if err != nil {
		handlerLogger.WithError(err).Error("Failed to list ready payments")
		return c.Send(fmt.Sprintf("Failed to list ready payments: %s", err.Error()))
	}
	if len(due) == 0 {
		return c.Send("No payments are due.")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Due payments (%d):\n", len(due)))
	for _, p := range due {
		sb.WriteString(fmt.Sprintf("- %s owner %d %s %s to %s\n", p.ID, p.OwnerID, p.Type, p.Amount.String(), p.RecipientAddress))
	}
	return c.Send(sb.String(), &telebot.SendOptions{DisableWebPagePreview: true})
}

func (h *adminHandlers) verifyBalance(c telebot.Context) error {
	handlerLogger, ok := h.begin(c, "/verify_balance")
	if !ok {
		return c.Send(unauthorizedReply)
	}

	args := c.Args()
	if len(args) != 2 {
		handlerLogger.WithField("args_count", len(args)).Warn("Invalid command format")
		return c.Send("Invalid command format. Use: /verify_balance <Address> <Amount>")
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil || !amount.IsPositive() {
		return c.Send("Error: amount must be a positive number.")
	}

	check, err := h.admin.VerifyBalance(h.ctx, c.Sender().ID, args[0], amount)
	if err != nil {
		if errors.Is(err, app.ErrInvalidAddress) {
			return c.Send(fmt.Sprintf("Error: %s", err.Error()))
		}
		handlerLogger.WithError(err).Error("Balance check failed")
		return c.Send(fmt.Sprintf("Balance check failed: %s", err.Error()))
	}

	verdict := "sufficient"
	if !check.IsSufficient {
		verdict = "insufficient"
	}
	return c.Send(fmt.Sprintf("Balance %s, estimated fee %s, required %s: %s.",
		check.Balance.String(), check.EstimatedFee.String(), check.RequiredTotal.String(), verdict))
}

func (h *adminHandlers) cancel(c telebot.Context) error {
	handlerLogger, ok := h.begin(c, "/cancel")
	if !ok {
		return c.Send(unauthorizedReply)
	}

	// Expected format: /cancel <OwnerID> <ScheduleID>
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Invalid command format. Use: /cancel <OwnerID> <ScheduleID>")
	}
	ownerID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Error: owner ID must be a number.")
	}

	handlerLogger = handlerLogger.WithFields(logrus.Fields{"owner_id": ownerID, "payment_id": args[1]})
	if err := h.admin.CancelSchedule(h.ctx, c.Sender().ID, ownerID, args[1]); err != nil {
		switch {
		case errors.Is(err, app.ErrScheduleNotFound):
			handlerLogger.Warn("Schedule not found")
			return c.Send(fmt.Sprintf("Error: schedule %s not found for owner %d.", args[1], ownerID))
		default:
			handlerLogger.WithError(err).Error("Failed to cancel schedule")
			return c.Send(fmt.Sprintf("Failed to cancel schedule: %s", err.Error()))
		}
	}

	handlerLogger.Info("Schedule cancelled from chat")
	return c.Send(fmt.Sprintf("Schedule %s cancelled.", args[1]))
}

// FormatTickSummary renders a tick summary as a chat message.
func FormatTickSummary(s app.TickSummary) string {
	if s.Error != "" && len(s.Outcomes) == 0 {
		return fmt.Sprintf("%s tick: %s", s.Kind, s.Error)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s tick processed %d payment(s).", s.Kind, s.Processed))
	for _, o := range s.Outcomes {
		if o.Skipped {
			continue
		}
		sb.WriteString(fmt.Sprintf("\n- %s: %s", o.PaymentID, o.Status))
		if o.TransactionID != "" {
			sb.WriteString(" tx " + o.TransactionID)
		}
		if o.Error != "" {
			sb.WriteString(" (" + o.Error + ")")
		}
	}
	if s.Error != "" {
		sb.WriteString("\n" + s.Error)
	}
	return sb.String()
}
