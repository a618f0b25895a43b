// internal/infra/telegram/client.go
package telegram

import (
	domainTelegram "payment_scheduler/internal/domain/telegram"

	"gopkg.in/telebot.v3"
)

var _ domainTelegram.Messenger = (*TelebotAdapter)(nil)

// TelebotAdapter implements the Messenger interface using the gopkg.in/telebot.v3 library.
// Owners and the operator are addressed by chat ID, so a private chat and a group
// that an owner linked to their account are handled the same way.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to the chat with the given ID.
func (tba *TelebotAdapter) SendMessage(chatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	_, err := tba.bot.Send(&telebot.Chat{ID: chatID}, text, options)
	return err
}
