// Package tgbot adapts Telegram updates to intake events: commands and
// messages become events for the intake loop.
package tgbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/printbot/core/logger"
	"github.com/m3rciful/printbot/core/sender"
	tg "github.com/m3rciful/printbot/core/telegram"
	"github.com/m3rciful/printbot/core/telegram/commands"
	"github.com/m3rciful/printbot/core/telegram/helpers"
	"github.com/m3rciful/printbot/core/telegram/router"
	"github.com/m3rciful/printbot/internal/intake"
	"github.com/m3rciful/printbot/internal/session"
)

const (
	notImage    = "Пожалуйста, отправьте изображение (фото или файл картинки)."
	unavailable = "Сервис временно недоступен, попробуйте позже."
	noSessions  = "Активных заказов нет."
)

// Sink hands an event to the intake loop.
type Sink func(ctx context.Context, ev intake.Event) error

// Options configures the Telegram adapter.
type Options struct {
	Sink  Sink
	Store session.Store
	// CancelKeyword is sent as the text of a /cancel event.
	CancelKeyword string
	AdminID       int64
	// FileURL turns a file id into a URL the order endpoint can download;
	// nil forwards raw file ids.
	FileURL func(fileID string) (string, error)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Bot turns Telegram updates into intake events.
type Bot struct {
	sink   Sink
	store  session.Store
	cancel string
	admin   int64
	fileURL func(string) (string, error)
	now     func() time.Time
}

// New validates opts.
func New(opts Options) (*Bot, error) {
	if opts.Sink == nil {
		return nil, fmt.Errorf("tgbot: nil sink")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("tgbot: nil store")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Bot{
		sink:    opts.Sink,
		store:   opts.Store,
		cancel:  strings.TrimSpace(opts.CancelKeyword),
		admin:   opts.AdminID,
		fileURL: opts.FileURL,
		now:     now,
	}, nil
}

// Register adds the bot commands to reg.
func (b *Bot) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     b.onStart,
		Description: "Начать заказ печати",
	})
	if b.cancel != "" {
		reg.RegisterCommand("/cancel", commands.Command{
			Handler:     b.onCancel,
			Description: "Отменить заказ",
			Aliases:     []string{"/stop"},
		})
	}
	reg.RegisterCommand("/sessions", commands.Command{
		Handler:     b.onSessions,
		Description: "Активные заказы",
		AdminOnly:   true,
	})
}

// Routes returns command and message routes for reg.
func (b *Bot) Routes(reg *tg.Registry) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{AdminID: b.admin})
	return append(routes, router.MessageRoutes(reg, router.MessageHandlers{
		Text:     b.onText,
		Photo:    b.onPhoto,
		Document: b.onDocument,
	})...)
}

func (b *Bot) onStart(c tele.Context) error {
	return b.emit(c, intake.KindText, "/start")
}

func (b *Bot) onCancel(c tele.Context) error {
	return b.emit(c, intake.KindText, b.cancel)
}

func (b *Bot) onText(c tele.Context) error {
	return b.emit(c, intake.KindText, c.Text())
}

func (b *Bot) onPhoto(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Photo == nil || msg.Photo.FileID == "" {
		return nil
	}
	return b.image(c, msg.Photo.FileID)
}

// onDocument accepts uncompressed images; other files get a hint.
func (b *Bot) onDocument(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Document == nil {
		return nil
	}
	doc := msg.Document
	if !strings.HasPrefix(strings.ToLower(doc.MIME), "image/") || doc.FileID == "" {
		return helpers.SendText(c, notImage)
	}
	return b.image(c, doc.FileID)
}

func (b *Bot) image(c tele.Context, fileID string) error {
	ref := fileID
	if b.fileURL != nil {
		url, err := b.fileURL(fileID)
		if err != nil {
			logger.Warn(helpers.BuildContext(c), "tg", "file.resolve",
				slog.String("status", "fail"),
				slog.String("file_id", fileID),
				slog.String("err", sender.SanitizeError(err)),
			)
			return helpers.SendText(c, unavailable)
		}
		ref = url
	}
	return b.emit(c, intake.KindImage, ref)
}

// FileURL resolves file ids with getFile into Bot API download URLs. The
// URLs carry the bot token.
func FileURL(bot *tele.Bot) func(string) (string, error) {
	return func(fileID string) (string, error) {
		f, err := bot.FileByID(fileID)
		if err != nil {
			return "", fmt.Errorf("tgbot: get file %s: %w", fileID, err)
		}
		if f.FilePath == "" {
			return "", fmt.Errorf("tgbot: get file %s: empty path", fileID)
		}
		return fmt.Sprintf("%s/file/bot%s/%s", strings.TrimRight(bot.URL, "/"), bot.Token, f.FilePath), nil
	}
}

func (b *Bot) emit(c tele.Context, kind intake.Kind, payload string) error {
	ctx := helpers.BuildContext(c)
	ev := intake.Event{
		ChatID:       helpers.ChatID(c),
		CustomerName: helpers.DisplayName(c),
		Kind:         kind,
		Payload:      payload,
	}
	if err := b.sink(ctx, ev); err != nil {
		logger.Warn(ctx, "tg", "intake.submit",
			slog.String("status", "fail"),
			slog.String("kind", string(kind)),
			slog.String("err", err.Error()),
		)
		return helpers.SendText(c, unavailable)
	}
	return nil
}

// onSessions lists live conversations for the admin.
func (b *Bot) onSessions(c tele.Context) error {
	return helpers.SendText(c, b.sessionsReport())
}

func (b *Bot) sessionsReport() string {
	list := b.store.List()
	if len(list) == 0 {
		return noSessions
	}
	now := b.now()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Активных заказов: %d\n", len(list))
	for _, s := range list {
		fmt.Fprintf(&sb, "\n%s (%s): %s, файлов %d, простой %s",
			s.ChatID, s.CustomerName, s.State, len(s.Files), s.Idle(now).Round(time.Second))
		if s.Paper != "" {
			fmt.Fprintf(&sb, ", %s", s.Paper)
		}
		if s.Size != "" {
			fmt.Fprintf(&sb, " %s", s.Size)
		}
	}
	return sb.String()
}
