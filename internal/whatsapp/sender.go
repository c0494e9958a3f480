package whatsapp

import (
	"context"
	"errors"
	"strings"

	"github.com/m3rciful/printbot/core/sender"
)

// TextSender delivers replies through sendMessage on the outbound dispatcher.
type TextSender struct {
	client messenger
	disp   *sender.Dispatcher
}

type messenger interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// NewTextSender binds a sender to a Green API client and its dispatcher.
func NewTextSender(client messenger, disp *sender.Dispatcher) *TextSender {
	return &TextSender{client: client, disp: disp}
}

// Send enqueues text for chatID, a Green API chat id such as "79001234567@c.us".
func (s *TextSender) Send(ctx context.Context, chatID, text string) error {
	if strings.TrimSpace(chatID) == "" {
		return errors.New("whatsapp: empty chat id")
	}
	return s.disp.Enqueue(ctx, chatID, "send.text", "sendMessage", func(ctx context.Context) error {
		return s.client.SendMessage(ctx, chatID, text)
	})
}
