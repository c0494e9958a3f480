package router

import (
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/printbot/core/telegram"
	"github.com/m3rciful/printbot/core/telegram/middleware"
)

// MessageHandlers receive the message kinds the bot understands.
// A nil handler drops that kind with a skip log line.
type MessageHandlers struct {
	Text     tele.HandlerFunc
	Photo    tele.HandlerFunc
	Document tele.HandlerFunc
}

// MessageRoutes builds the text, photo and document routes. Text that names a
// registered command (with or without slash, or an alias) runs the command.
func MessageRoutes(reg *tg.Registry, h MessageHandlers) []tg.Route {
	text := func(c tele.Context) error {
		start := time.Now()

		if reg != nil {
			word, _, _ := strings.Cut(strings.TrimSpace(c.Text()), " ")
			if key, cmd, ok := reg.LookupCommand(word); ok && cmd.Handler != nil && !cmd.AdminOnly {
				return handleWithSummary(c, normalizeHandlerName(key), start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}
		return dispatch(c, "text", start, h.Text)
	}
	photo := func(c tele.Context) error {
		return dispatch(c, "photo", time.Now(), h.Photo)
	}
	document := func(c tele.Context) error {
		return dispatch(c, "document", time.Now(), h.Document)
	}

	wrap := func(fn tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(fn))
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text)},
		{Endpoint: tele.OnPhoto, Handler: wrap(photo)},
		{Endpoint: tele.OnDocument, Handler: wrap(document)},
	}
}

func dispatch(c tele.Context, name string, start time.Time, fn tele.HandlerFunc) error {
	if fn == nil {
		logHandlerSummary(c, name, start, "skip", "ignored", nil)
		return nil
	}
	return handleWithSummary(c, name, start, "", "", func() error { return fn(c) })
}
