package whatsapp

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/printbot/core/logger"
	"github.com/m3rciful/printbot/core/sender"
)

type notifier interface {
	ReceiveNotification(ctx context.Context) (*Notification, error)
	DeleteNotification(ctx context.Context, receiptID int64) error
}

// Poller pulls notifications instead of serving the webhook.
type Poller struct {
	client  notifier
	sink    Sink
	backoff time.Duration
}

// NewPoller builds a poller that forwards messages to sink.
func NewPoller(client notifier, sink Sink) *Poller {
	return &Poller{client: client, sink: sink, backoff: 3 * time.Second}
}

// Run polls until ctx is done. A notification is deleted only after the sink
// accepted it, so a failed handoff is received again.
func (p *Poller) Run(ctx context.Context) error {
	logger.Info(ctx, "wa", "mode", slog.String("mode", "longpoll"))
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := p.poll(ctx); err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "wa", "poll",
				slog.String("status", "fail"),
				slog.String("err", sender.SanitizeError(err)),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	n, err := p.client.ReceiveNotification(ctx)
	if err != nil || n == nil {
		return err
	}
	if err := deliver(ctx, n.Body, p.sink); err != nil {
		return err
	}
	return p.client.DeleteNotification(context.WithoutCancel(ctx), n.ReceiptID)
}
