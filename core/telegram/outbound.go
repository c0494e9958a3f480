package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/printbot/core/sender"
)

// TextSender delivers plain texts to Telegram chats through the outbound
// dispatcher. Chat ids are the decimal Telegram chat ids.
type TextSender struct {
	bot  tele.API
	disp *sender.Dispatcher
}

// NewTextSender binds a sender to a bot and its dispatcher.
func NewTextSender(bot tele.API, disp *sender.Dispatcher) *TextSender {
	return &TextSender{bot: bot, disp: disp}
}

// Send enqueues text for chatID. Delivery errors after enqueue are logged by
// the dispatcher.
func (s *TextSender) Send(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	return s.disp.Enqueue(ctx, chatID, "send.text", "sendMessage", func(context.Context) error {
		_, err := s.bot.Send(tele.ChatID(id), text)
		return err
	})
}
