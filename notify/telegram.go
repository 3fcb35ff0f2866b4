package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotSender is the part of *tgbotapi.BotAPI used to deliver messages.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel posts notifications to a Telegram chat.
type TelegramChannel struct {
	bot    BotSender
	chatID int64
}

// NewTelegramChannel connects to the Bot API with token.
func NewTelegramChannel(token string, chatID int64) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramChannelWithBot(bot, chatID), nil
}

// NewTelegramChannelWithBot uses an existing bot connection.
func NewTelegramChannelWithBot(bot BotSender, chatID int64) *TelegramChannel {
	return &TelegramChannel{bot: bot, chatID: chatID}
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

// Send posts "<title> <url>" followed by the listing details.
func (t *TelegramChannel) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text := msg.Title
	if msg.URL != "" {
		text += " " + msg.URL
	}
	if msg.Body != "" {
		text += "\n\n" + msg.Body
	}

	m := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(m); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
