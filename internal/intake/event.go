// Package intake drives customer conversations: it turns inbound events into
// session transitions, sends the matching prompts, submits finished orders
// and sweeps idle sessions.
package intake

import (
	"context"
	"errors"
	"strings"

	coreconfig "github.com/m3rciful/printbot/core/config"
	"github.com/m3rciful/printbot/internal/orders"
)

// Kind classifies an inbound event.
type Kind string

const (
	// KindText is a text message.
	KindText Kind = "text"
	// KindImage is an uploaded image; Payload holds its reference.
	KindImage Kind = "image"
)

// Event is one inbound customer message, normalized by a transport.
type Event struct {
	ChatID       string
	CustomerName string
	Kind         Kind
	Payload      string
}

// Sender delivers a text to a chat.
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

// Submitter hands a finished order to the shop and returns its id.
type Submitter interface {
	Submit(ctx context.Context, o orders.Order) (string, error)
}

var (
	// ErrDeliveryFailed wraps a failed outbound send.
	ErrDeliveryFailed = errors.New("intake: delivery failed")
	// ErrLoopClosed is returned by Loop.Submit once the loop stopped.
	ErrLoopClosed = errors.New("intake: loop closed")
	// ErrInvalidEvent rejects events without chat id or with an unknown kind.
	ErrInvalidEvent = errors.New("intake: invalid event")
)

// Keywords are matched case-insensitively as substrings of trimmed text.
type Keywords struct {
	Cancel    []string
	FilesDone []string
	Ready     []string
}

// KeywordsFromConfig copies the keyword lists of the intake config.
func KeywordsFromConfig(cfg coreconfig.IntakeConfig) Keywords {
	return Keywords{
		Cancel:    cfg.CancelKeywords,
		FilesDone: cfg.FilesDoneKeywords,
		Ready:     cfg.ReadyKeywords,
	}
}

func matches(list []string, text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	for _, k := range list {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}
