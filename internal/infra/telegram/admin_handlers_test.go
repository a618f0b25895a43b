package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"payment_scheduler/internal/app"
	"payment_scheduler/internal/domain/payment"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
)

const testAdminID int64 = 42

// fakeContext implements the parts of telebot.Context the handlers touch.
type fakeContext struct {
	telebot.Context
	sender *telebot.User
	args   []string
	sent   []string
}

func (c *fakeContext) Sender() *telebot.User { return c.sender }
func (c *fakeContext) Chat() *telebot.Chat   { return &telebot.Chat{ID: c.sender.ID} }
func (c *fakeContext) Args() []string        { return c.args }
func (c *fakeContext) Send(what interface{}, _ ...interface{}) error {
	c.sent = append(c.sent, fmt.Sprint(what))
	return nil
}

func (c *fakeContext) last() string {
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

func newContext(senderID int64, args ...string) *fakeContext {
	return &fakeContext{sender: &telebot.User{ID: senderID, FirstName: "Ops"}, args: args}
}

type fakeAdmin struct {
	summary   app.TickSummary
	due       []*payment.ScheduledPayment
	readyFor  *int64
	check     app.BalanceCheck
	checkErr  error
	cancelErr error
	cancelled []string
	gotCtx    context.Context
}

func (f *fakeAdmin) RunTick(ctx context.Context, _ int64) (app.TickSummary, error) {
	f.gotCtx = ctx
	return f.summary, nil
}

func (f *fakeAdmin) RunConditionalTick(_ context.Context, _ int64) (app.TickSummary, error) {
	return f.summary, nil
}

func (f *fakeAdmin) ReadyPayments(_ context.Context, _ int64, ownerID *int64) ([]*payment.ScheduledPayment, error) {
	f.readyFor = ownerID
	return f.due, nil
}

func (f *fakeAdmin) VerifyBalance(_ context.Context, _ int64, _ string, _ decimal.Decimal) (app.BalanceCheck, error) {
	return f.check, f.checkErr
}

func (f *fakeAdmin) CancelSchedule(_ context.Context, _, ownerID int64, scheduleID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, fmt.Sprintf("%d/%s", ownerID, scheduleID))
	return nil
}

func newAdminHandlers(admin AdminOperations) *adminHandlers {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &adminHandlers{
		ctx:             context.Background(),
		admin:           admin,
		adminTelegramID: testAdminID,
		tickTimeout:     time.Minute,
		logger:          logrus.NewEntry(l),
	}
}

func TestAdminHandlersRejectStrangers(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{}
	h := newAdminHandlers(admin)

	for name, handler := range map[string]telebot.HandlerFunc{
		"run_tick":             h.runTick,
		"run_conditional_tick": h.runConditionalTick,
		"ready":                h.ready,
		"verify_balance":       h.verifyBalance,
		"cancel":               h.cancel,
	} {
		c := newContext(7, "1", "abc")
		require.NoError(t, handler(c), name)
		assert.Equal(t, unauthorizedReply, c.last(), name)
	}
	assert.Empty(t, admin.cancelled)
}

func TestRunTickCommand(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{summary: app.TickSummary{
		Kind:      app.TickGeneral,
		Processed: 1,
		Outcomes: []app.PaymentOutcome{
			{PaymentID: "p-1", Executed: true, Status: payment.ExecutionExecuted, TransactionID: "0xtx"},
			{PaymentID: "p-2", Skipped: true},
		},
	}}
	c := newContext(testAdminID)
	require.NoError(t, newAdminHandlers(admin).runTick(c))

	_, hasDeadline := admin.gotCtx.Deadline()
	assert.True(t, hasDeadline)
	assert.Contains(t, c.last(), "processed 1 payment(s)")
	assert.Contains(t, c.last(), "p-1")
	assert.Contains(t, c.last(), "0xtx")
	assert.NotContains(t, c.last(), "p-2")
}

func TestReadyCommand(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{}
	h := newAdminHandlers(admin)

	c := newContext(testAdminID)
	require.NoError(t, h.ready(c))
	assert.Equal(t, "No payments are due.", c.last())
	assert.Nil(t, admin.readyFor)

	admin.due = []*payment.ScheduledPayment{{ID: "p-1", OwnerID: 5, Type: payment.TypeSingle, Amount: decimal.NewFromInt(2), RecipientAddress: "0xabc"}}
	c = newContext(testAdminID, "5")
	require.NoError(t, h.ready(c))
	require.NotNil(t, admin.readyFor)
	assert.Equal(t, int64(5), *admin.readyFor)
	assert.Contains(t, c.last(), "p-1 owner 5 SINGLE 2 to 0xabc")

	c = newContext(testAdminID, "five")
	require.NoError(t, h.ready(c))
	assert.Contains(t, c.last(), "must be a number")
}

func TestVerifyBalanceCommand(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{check: app.BalanceCheck{
		Balance:       decimal.NewFromInt(4),
		EstimatedFee:  decimal.RequireFromString("0.001"),
		RequiredTotal: decimal.RequireFromString("5.001"),
	}}
	h := newAdminHandlers(admin)

	c := newContext(testAdminID, "0xabc", "5")
	require.NoError(t, h.verifyBalance(c))
	assert.Equal(t, "Balance 4, estimated fee 0.001, required 5.001: insufficient.", c.last())

	c = newContext(testAdminID, "0xabc")
	require.NoError(t, h.verifyBalance(c))
	assert.Contains(t, c.last(), "Invalid command format")

	c = newContext(testAdminID, "0xabc", "-1")
	require.NoError(t, h.verifyBalance(c))
	assert.Contains(t, c.last(), "positive number")

	admin.checkErr = fmt.Errorf("%w %q", app.ErrInvalidAddress, "0xabc")
	c = newContext(testAdminID, "0xabc", "1")
	require.NoError(t, h.verifyBalance(c))
	assert.Contains(t, c.last(), "invalid address")
}

func TestCancelCommand(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{}
	h := newAdminHandlers(admin)

	c := newContext(testAdminID, "3", "abc")
	require.NoError(t, h.cancel(c))
	assert.Equal(t, []string{"3/abc"}, admin.cancelled)
	assert.Equal(t, "Schedule abc cancelled.", c.last())

	admin.cancelErr = app.ErrScheduleNotFound
	c = newContext(testAdminID, "3", "abc")
	require.NoError(t, h.cancel(c))
	assert.Contains(t, c.last(), "not found for owner 3")

	admin.cancelErr = errors.New("db down")
	c = newContext(testAdminID, "3", "abc")
	require.NoError(t, h.cancel(c))
	assert.Contains(t, c.last(), "db down")
}

func TestFormatTickSummaryOverlap(t *testing.T) {
	t.Parallel()

	msg := FormatTickSummary(app.TickSummary{Kind: app.TickConditional, Error: app.ErrTickInProgress.Error()})
	assert.Equal(t, "conditional tick: tick already running", msg)
}

func TestStartAndHelp(t *testing.T) {
	t.Parallel()

	l := logrus.New()
	l.SetOutput(io.Discard)
	entry := logrus.NewEntry(l)

	c := newContext(99)
	require.NoError(t, startHandler(testAdminID, entry)(c))
	assert.Contains(t, c.last(), "Your chat ID is 99")

	c = newContext(testAdminID)
	require.NoError(t, helpHandler(testAdminID, entry)(c))
	assert.Contains(t, c.last(), "/verify_balance")

	c = newContext(99)
	require.NoError(t, helpHandler(testAdminID, entry)(c))
	assert.NotContains(t, c.last(), "/run_tick")
}
