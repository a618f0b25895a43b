// internal/app/receipt_service.go
package app

import (
	"context"
	"fmt"

	"payment_scheduler/internal/domain/history"
	"payment_scheduler/internal/domain/mail"
	"payment_scheduler/internal/domain/owner"
	"payment_scheduler/internal/domain/payment"
	domainTelegram "payment_scheduler/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// ReceiptService runs the side effects of a confirmed transfer: history for both
// parties, chat notifications and email receipts. The transfer already happened
// on-chain, so every failure here is logged and swallowed.
type ReceiptService struct {
	owners    owner.Directory
	history   history.Repository
	messenger domainTelegram.Messenger // nil disables chat notifications
	mailer    mail.Mailer              // nil disables email receipts
	logger    logrus.FieldLogger
}

func NewReceiptService(
	owners owner.Directory,
	historyRepo history.Repository,
	messenger domainTelegram.Messenger,
	mailer mail.Mailer,
	logger logrus.FieldLogger,
) *ReceiptService {
	return &ReceiptService{
		owners:    owners,
		history:   historyRepo,
		messenger: messenger,
		mailer:    mailer,
		logger:    logger,
	}
}

// RecordTransfer records and announces a confirmed transfer.
func (s *ReceiptService) RecordTransfer(ctx context.Context, p *payment.ScheduledPayment, result payment.ExecutionResult) {
	log := s.logger.WithFields(logrus.Fields{"payment_id": p.ID, "tx_hash": result.TransactionID})

	sender, err := s.owners.GetByID(ctx, p.OwnerID)
	if err != nil {
		log.WithError(err).Error("Failed to load sender for receipts")
		return
	}

	s.addHistory(ctx, log, &history.Entry{
		OwnerID:       sender.ID,
		PaymentID:     p.ID,
		Direction:     history.DirectionSent,
		Counterparty:  p.RecipientAddress,
		Amount:        p.Amount,
		TransactionID: result.TransactionID,
	})

	// The recipient only gets history and notices when it is one of our owners.
	recipient, err := s.owners.GetByAddress(ctx, p.RecipientAddress)
	if err != nil {
		log.WithError(err).Debug("Recipient is not a known owner")
		recipient = nil
	}
	if recipient != nil {
		s.addHistory(ctx, log, &history.Entry{
			OwnerID:       recipient.ID,
			PaymentID:     p.ID,
			Direction:     history.DirectionReceived,
			Counterparty:  sender.SendingAddress,
			Amount:        p.Amount,
			TransactionID: result.TransactionID,
		})
	}

	sentText := fmt.Sprintf("Scheduled payment sent: %s to %s.\nTransaction: %s", p.Amount, p.RecipientAddress, result.TransactionID)
	s.notify(log, sender, sentText)
	s.email(ctx, log, sender, mail.Message{
		Subject: "Payment receipt",
		Body:    fmt.Sprintf("Hi %s,\n\n%s\n", sender.DisplayName, sentText),
	})

	if recipient != nil {
		receivedText := fmt.Sprintf("You received %s from %s.\nTransaction: %s", p.Amount, sender.DisplayName, result.TransactionID)
		s.notify(log, recipient, receivedText)
		s.email(ctx, log, recipient, mail.Message{
			Subject: "Payment received",
			Body:    fmt.Sprintf("Hi %s,\n\n%s\n", recipient.DisplayName, receivedText),
		})
	}
}

// NotifyFailure tells the owner that an attempt did not go through.
func (s *ReceiptService) NotifyFailure(ctx context.Context, p *payment.ScheduledPayment, result payment.ExecutionResult) {
	log := s.logger.WithFields(logrus.Fields{"payment_id": p.ID})
	o, err := s.owners.GetByID(ctx, p.OwnerID)
	if err != nil {
		log.WithError(err).Error("Failed to load owner for failure notice")
		return
	}
	s.notify(log, o, fmt.Sprintf("Scheduled payment of %s to %s failed: %s", p.Amount, p.RecipientAddress, result.Error))
}

func (s *ReceiptService) addHistory(ctx context.Context, log *logrus.Entry, e *history.Entry) {
	if err := s.history.Create(ctx, e); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"owner_id":  e.OwnerID,
			"direction": e.Direction,
		}).Error("Failed to record transfer history")
	}
}

func (s *ReceiptService) notify(log *logrus.Entry, o *owner.Owner, text string) {
	if s.messenger == nil || !o.TelegramChatID.Valid {
		return
	}
	if err := s.messenger.SendMessage(o.TelegramChatID.Int64, text, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		log.WithError(err).WithField("owner_id", o.ID).Error("Failed to send Telegram notification")
	}
}

func (s *ReceiptService) email(ctx context.Context, log *logrus.Entry, o *owner.Owner, msg mail.Message) {
	if s.mailer == nil || !o.Email.Valid || o.Email.String == "" {
		return
	}
	msg.To = o.Email.String
	if err := s.mailer.Send(ctx, msg); err != nil {
		log.WithError(err).WithField("owner_id", o.ID).Error("Failed to send email receipt")
	}
}
