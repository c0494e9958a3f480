package tgbot

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/printbot/core/telegram"
	"github.com/m3rciful/printbot/internal/intake"
	"github.com/m3rciful/printbot/internal/session"
)

type sinkRecorder struct {
	mu     sync.Mutex
	events []intake.Event
}

func (s *sinkRecorder) sink(_ context.Context, ev intake.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func newTestBot(t *testing.T) (*Bot, *sinkRecorder, *session.MemoryStore) {
	t.Helper()
	rec := &sinkRecorder{}
	store := session.NewMemoryStore()
	b, err := New(Options{Sink: rec.sink, Store: store, CancelKeyword: "отмена", AdminID: 1})
	require.NoError(t, err)
	return b, rec, store
}

func newContext(t *testing.T, msg *tele.Message) tele.Context {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	msg.Chat = &tele.Chat{ID: 42}
	msg.Sender = &tele.User{ID: 42, FirstName: "Ivan", LastName: "Petrov"}
	return bot.NewContext(tele.Update{ID: 1, Message: msg})
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{Store: session.NewMemoryStore()})
	require.Error(t, err)
	_, err = New(Options{Sink: func(context.Context, intake.Event) error { return nil }})
	require.Error(t, err)
}

func TestMessagesBecomeEvents(t *testing.T) {
	b, rec, _ := newTestBot(t)

	require.NoError(t, b.onText(newContext(t, &tele.Message{Text: "Все"})))
	require.NoError(t, b.onPhoto(newContext(t, &tele.Message{Photo: &tele.Photo{File: tele.File{FileID: "photo-1"}}})))
	require.NoError(t, b.onDocument(newContext(t, &tele.Message{Document: &tele.Document{File: tele.File{FileID: "doc-1"}, MIME: "image/jpeg"}})))
	require.NoError(t, b.onStart(newContext(t, &tele.Message{Text: "/start"})))
	require.NoError(t, b.onCancel(newContext(t, &tele.Message{Text: "/cancel"})))

	want := []intake.Event{
		{ChatID: "42", CustomerName: "Ivan Petrov", Kind: intake.KindText, Payload: "Все"},
		{ChatID: "42", CustomerName: "Ivan Petrov", Kind: intake.KindImage, Payload: "photo-1"},
		{ChatID: "42", CustomerName: "Ivan Petrov", Kind: intake.KindImage, Payload: "doc-1"},
		{ChatID: "42", CustomerName: "Ivan Petrov", Kind: intake.KindText, Payload: "/start"},
		{ChatID: "42", CustomerName: "Ivan Petrov", Kind: intake.KindText, Payload: "отмена"},
	}
	assert.Equal(t, want, rec.events)
}

// fakeBotAPI answers getFile for "photo-1" and records sendMessage bodies.
func fakeBotAPI(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu   sync.Mutex
		sent []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getFile") && strings.Contains(string(body), "photo-1"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"file_id":"photo-1","file_unique_id":"u1","file_path":"photos/file_0.jpg"}}`))
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: invalid file_id"}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			mu.Lock()
			sent = append(sent, string(body))
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &sent
}

func TestFileURLResolvesDownloadURL(t *testing.T) {
	srv, _ := fakeBotAPI(t)
	bot, err := tele.NewBot(tele.Settings{URL: srv.URL, Token: "123:ABC", Offline: true})
	require.NoError(t, err)

	url, err := FileURL(bot)("photo-1")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/file/bot123:ABC/photos/file_0.jpg", url)

	_, err = FileURL(bot)("missing")
	require.Error(t, err)
}

func TestImagesCarryResolvedURLs(t *testing.T) {
	srv, sent := fakeBotAPI(t)
	bot, err := tele.NewBot(tele.Settings{URL: srv.URL, Token: "123:ABC", Offline: true})
	require.NoError(t, err)

	rec := &sinkRecorder{}
	b, err := New(Options{Sink: rec.sink, Store: session.NewMemoryStore(), FileURL: FileURL(bot)})
	require.NoError(t, err)

	ctxFor := func(msg *tele.Message) tele.Context {
		msg.Chat = &tele.Chat{ID: 42}
		msg.Sender = &tele.User{ID: 42, FirstName: "Ivan"}
		return bot.NewContext(tele.Update{ID: 1, Message: msg})
	}

	require.NoError(t, b.onPhoto(ctxFor(&tele.Message{Photo: &tele.Photo{File: tele.File{FileID: "photo-1"}}})))
	require.Len(t, rec.events, 1)
	assert.Equal(t, intake.KindImage, rec.events[0].Kind)
	assert.Equal(t, srv.URL+"/file/bot123:ABC/photos/file_0.jpg", rec.events[0].Payload)

	// An unresolvable file is not forwarded; the customer is asked to retry.
	require.NoError(t, b.onDocument(ctxFor(&tele.Message{Document: &tele.Document{File: tele.File{FileID: "gone"}, MIME: "image/png"}})))
	assert.Len(t, rec.events, 1)
	require.Len(t, *sent, 1)
	assert.Contains(t, (*sent)[0], "недоступен")
}

func TestRegisterCommands(t *testing.T) {
	b, _, _ := newTestBot(t)
	reg := tg.NewRegistry()
	b.Register(reg)

	key, cmd, ok := reg.LookupCommand("stop")
	require.True(t, ok)
	assert.Equal(t, "/cancel", key)
	assert.False(t, cmd.AdminOnly)

	_, cmd, ok = reg.LookupCommand("/sessions")
	require.True(t, ok)
	assert.True(t, cmd.AdminOnly)

	visible := reg.ListCommands(true)
	require.Len(t, visible, 2)
	assert.Equal(t, "/cancel", visible[0].Text)
	assert.Equal(t, "/start", visible[1].Text)

	assert.Len(t, b.Routes(reg), 3+3)
}

func TestRegisterWithoutCancelKeyword(t *testing.T) {
	b, err := New(Options{Sink: func(context.Context, intake.Event) error { return errors.New("x") }, Store: session.NewMemoryStore()})
	require.NoError(t, err)
	reg := tg.NewRegistry()
	b.Register(reg)
	_, _, ok := reg.LookupCommand("/cancel")
	assert.False(t, ok)
}

func TestSessionsReport(t *testing.T) {
	b, _, store := newTestBot(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	assert.Equal(t, noSessions, b.sessionsReport())

	s := session.New("79140000000@c.us", "Ivan", now.Add(-90*time.Second))
	s.AddFile("f1", now.Add(-90*time.Second))
	store.Set(s)

	report := b.sessionsReport()
	assert.Contains(t, report, "Активных заказов: 1")
	assert.Contains(t, report, "79140000000@c.us (Ivan)")
	assert.Contains(t, report, string(session.FilesReceiving))
	assert.Contains(t, report, "файлов 1")
	assert.Contains(t, report, "1m30s")
}
