// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func RegisterBotCommands(
	b *telebot.Bot,
	adminTelegramID int64,
	baseLogger *logrus.Entry, // For contextual logging
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")
	b.Handle("/start", startHandler(adminTelegramID, startHelpLogger))
	b.Handle("/help", helpHandler(adminTelegramID, startHelpLogger))
}

func startHandler(adminTelegramID int64, logger *logrus.Entry) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := logger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID == adminTelegramID {
			logCtx.Info("User identified as Admin")
			return c.Send(fmt.Sprintf("Hello, %s! The payment scheduler is running. Use /help for the list of commands.", c.Sender().FirstName))
		}

		// Owners link this chat to their account to receive payment receipts.
		logCtx.Info("User is not the admin")
		return c.Send(fmt.Sprintf("Hello! I send receipts for scheduled payments. Your chat ID is %d; add it to your account to receive notifications here.", c.Chat().ID))
	}
}

func helpHandler(adminTelegramID int64, logger *logrus.Entry) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := logger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if senderID != adminTelegramID {
			logCtx.Info("User is not the admin, sending restricted help.")
			return c.Send("There are no commands for you. Receipts for your scheduled payments arrive here automatically once your chat ID is linked to your account.")
		}

		var helpText strings.Builder
		helpText.WriteString("Admin commands:\n\n")
		helpText.WriteString("`/run_tick`\n - Run the single and recurring payment tick now.\n\n")
		helpText.WriteString("`/run_conditional_tick`\n - Run the conditional payment tick now.\n\n")
		helpText.WriteString("`/ready [OwnerID]`\n - List payments that are due.\n\n")
		helpText.WriteString("`/verify_balance <Address> <Amount>`\n - Check that an address can cover an amount plus fees.\n\n")
		helpText.WriteString("`/cancel <OwnerID> <ScheduleID>`\n - Remove a schedule.\n\n")
		helpText.WriteString("`/help`\n - Show this message.")
		return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	}
}
