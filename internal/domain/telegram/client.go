package telegram

import "gopkg.in/telebot.v3"

// Messenger delivers chat messages to owners and to the operator.
// Payment code depends on this instead of *telebot.Bot so notifications can be disabled or faked.
type Messenger interface {
	SendMessage(chatID int64, text string, options *telebot.SendOptions) error
}
