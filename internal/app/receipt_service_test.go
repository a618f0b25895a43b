package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"payment_scheduler/internal/domain/history"
	"payment_scheduler/internal/domain/mail"
	"payment_scheduler/internal/domain/owner"
	"payment_scheduler/internal/domain/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
)

type sentMessage struct {
	chatID int64
	text   string
}

type recordingMessenger struct {
	sent []sentMessage
	err  error
}

func (m *recordingMessenger) SendMessage(chatID int64, text string, _ *telebot.SendOptions) error {
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text})
	return m.err
}

type recordingMailer struct {
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func knownRecipient() *owner.Owner {
	return &owner.Owner{
		ID:             2,
		DisplayName:    "Bob",
		SendingAddress: recipientAddress,
		Email:          sql.NullString{String: "bob@example.com", Valid: true},
		TelegramChatID: sql.NullInt64{Int64: 200, Valid: true},
	}
}

func TestRecordTransfer(t *testing.T) {
	t.Parallel()

	t.Run("known recipient gets history and notices", func(t *testing.T) {
		sender := testSender()
		sender.TelegramChatID = sql.NullInt64{Int64: 100, Valid: true}
		sender.Email = sql.NullString{String: "alice@example.com", Valid: true}

		hist := &memoryHistory{}
		messenger := &recordingMessenger{}
		mailer := &recordingMailer{}
		svc := NewReceiptService(newMemoryOwners(sender, knownRecipient()), hist, messenger, mailer, quietLogger())

		svc.RecordTransfer(context.Background(), readyPayment("p-1", payment.TypeSingle),
			payment.ExecutionResult{Success: true, TransactionID: "0xtx"})

		require.Len(t, hist.entries, 2)
		assert.Equal(t, history.DirectionSent, hist.entries[0].Direction)
		assert.Equal(t, int64(1), hist.entries[0].OwnerID)
		assert.Equal(t, history.DirectionReceived, hist.entries[1].Direction)
		assert.Equal(t, int64(2), hist.entries[1].OwnerID)
		assert.Equal(t, senderAddress, hist.entries[1].Counterparty)

		require.Len(t, messenger.sent, 2)
		assert.Equal(t, int64(100), messenger.sent[0].chatID)
		assert.Contains(t, messenger.sent[0].text, "0xtx")
		assert.Equal(t, int64(200), messenger.sent[1].chatID)

		require.Len(t, mailer.sent, 2)
		assert.Equal(t, "alice@example.com", mailer.sent[0].To)
		assert.Equal(t, "bob@example.com", mailer.sent[1].To)
	})

	t.Run("external recipient only records the sender side", func(t *testing.T) {
		hist := &memoryHistory{}
		svc := NewReceiptService(newMemoryOwners(testSender()), hist, nil, nil, quietLogger())

		svc.RecordTransfer(context.Background(), readyPayment("p-1", payment.TypeSingle),
			payment.ExecutionResult{Success: true, TransactionID: "0xtx"})

		require.Len(t, hist.entries, 1)
		assert.Equal(t, history.DirectionSent, hist.entries[0].Direction)
	})

	t.Run("side effect failures are swallowed", func(t *testing.T) {
		hist := &memoryHistory{err: errors.New("db down")}
		messenger := &recordingMessenger{err: errors.New("telegram down")}
		mailer := &recordingMailer{err: errors.New("smtp down")}
		svc := NewReceiptService(newMemoryOwners(testSender(), knownRecipient()), hist, messenger, mailer, quietLogger())

		assert.NotPanics(t, func() {
			svc.RecordTransfer(context.Background(), readyPayment("p-1", payment.TypeSingle),
				payment.ExecutionResult{Success: true, TransactionID: "0xtx"})
		})
		assert.Len(t, messenger.sent, 1, "recipient is still notified after history fails")
		assert.Len(t, mailer.sent, 1)
	})
}

func TestNotifyFailure(t *testing.T) {
	t.Parallel()

	sender := testSender()
	sender.TelegramChatID = sql.NullInt64{Int64: 100, Valid: true}
	messenger := &recordingMessenger{}
	svc := NewReceiptService(newMemoryOwners(sender), &memoryHistory{}, messenger, nil, quietLogger())

	svc.NotifyFailure(context.Background(), readyPayment("p-1", payment.TypeSingle),
		payment.ExecutionResult{Error: "insufficient balance: available 4"})

	require.Len(t, messenger.sent, 1)
	assert.Contains(t, messenger.sent[0].text, "insufficient balance")
}

type fakeVault struct {
	plain map[string]string
}

func (v fakeVault) Decrypt(_ int64, sealed string) (string, error) {
	key, ok := v.plain[sealed]
	if !ok {
		return "", errors.New("cipher: message authentication failed")
	}
	return key, nil
}

func TestSigningKeyService(t *testing.T) {
	t.Parallel()

	withoutKey := &owner.Owner{ID: 3, SendingAddress: "0x3333333333333333333333333333333333333333"}
	corrupt := &owner.Owner{ID: 4, SendingAddress: "0x4444444444444444444444444444444444444444", EncryptedSigningKey: "tampered"}
	svc := NewSigningKeyService(newMemoryOwners(testSender(), withoutKey, corrupt), fakeVault{plain: map[string]string{"sealed": senderKey}})
	ctx := context.Background()

	key, err := svc.Authorization(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, senderKey, key)

	_, err = svc.Authorization(ctx, 3)
	assert.ErrorIs(t, err, ErrSigningKeyMissing)

	_, err = svc.Authorization(ctx, 4)
	assert.ErrorContains(t, err, "decrypt signing key of owner 4")

	_, err = svc.Authorization(ctx, 99)
	assert.Error(t, err)
}

func TestConditionEvaluator(t *testing.T) {
	t.Parallel()

	owners := newMemoryOwners(testSender())

	t.Run("balance below threshold", func(t *testing.T) {
		client := newFakeChain("5")
		check, err := NewConditionEvaluator(owners, client, 0).Evaluate(context.Background(), readyPayment("c-1", payment.TypeConditional))
		require.NoError(t, err)
		assert.False(t, check.Met)
		assert.Equal(t, "5", check.Balance.String())
	})

	t.Run("balance at threshold", func(t *testing.T) {
		client := newFakeChain("10")
		check, err := NewConditionEvaluator(owners, client, 0).Evaluate(context.Background(), readyPayment("c-1", payment.TypeConditional))
		require.NoError(t, err)
		assert.True(t, check.Met)
	})

	t.Run("rpc failure surfaces", func(t *testing.T) {
		client := newFakeChain("10")
		client.balanceErr = errors.New("connection reset")
		_, err := NewConditionEvaluator(owners, client, 0).Evaluate(context.Background(), readyPayment("c-1", payment.TypeConditional))
		assert.ErrorContains(t, err, "connection reset")
	})
}
