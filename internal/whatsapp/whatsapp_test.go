package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/printbot/core/config"
	"github.com/m3rciful/printbot/core/sender"
	"github.com/m3rciful/printbot/internal/intake"
)

const textHook = `{
	"typeWebhook": "incomingMessageReceived",
	"senderData": {"chatId": "79140000000@c.us", "senderName": "Ivan"},
	"messageData": {"typeMessage": "textMessage", "textMessageData": {"textMessage": "привет"}}
}`

func TestHookEvent(t *testing.T) {
	cases := []struct {
		name string
		body string
		want intake.Event
		ok   bool
	}{
		{
			name: "text",
			body: textHook,
			want: intake.Event{ChatID: "79140000000@c.us", CustomerName: "Ivan", Kind: intake.KindText, Payload: "привет"},
			ok:   true,
		},
		{
			name: "extended text",
			body: `{"typeWebhook":"incomingMessageReceived","senderData":{"chatId":"1@c.us","senderName":"A"},
				"messageData":{"typeMessage":"extendedTextMessage","extendedTextMessageData":{"text":"Все"}}}`,
			want: intake.Event{ChatID: "1@c.us", CustomerName: "A", Kind: intake.KindText, Payload: "Все"},
			ok:   true,
		},
		{
			name: "image",
			body: `{"typeWebhook":"incomingMessageReceived","senderData":{"chatId":"1@c.us","senderName":"A"},
				"messageData":{"typeMessage":"imageMessage","fileMessageData":{"downloadUrl":"https://files/x.jpg"}}}`,
			want: intake.Event{ChatID: "1@c.us", CustomerName: "A", Kind: intake.KindImage, Payload: "https://files/x.jpg"},
			ok:   true,
		},
		{
			name: "image document",
			body: `{"typeWebhook":"incomingMessageReceived","senderData":{"chatId":"1@c.us"},
				"messageData":{"typeMessage":"documentMessage","fileMessageData":{"downloadUrl":"https://files/y.png","mimeType":"image/png"}}}`,
			want: intake.Event{ChatID: "1@c.us", Kind: intake.KindImage, Payload: "https://files/y.png"},
			ok:   true,
		},
		{
			name: "pdf document",
			body: `{"typeWebhook":"incomingMessageReceived","senderData":{"chatId":"1@c.us"},
				"messageData":{"typeMessage":"documentMessage","fileMessageData":{"downloadUrl":"https://files/z.pdf","mimeType":"application/pdf"}}}`,
		},
		{
			name: "state change",
			body: `{"typeWebhook":"stateInstanceChanged","stateInstance":"authorized"}`,
		},
		{
			name: "outgoing status",
			body: `{"typeWebhook":"outgoingMessageStatus","statusInstance":"delivered"}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hook HookRoot
			require.NoError(t, json.Unmarshal([]byte(tc.body), &hook))
			got, ok := hook.Event()
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []intake.Event
	err    error
}

func (s *sinkRecorder) sink(_ context.Context, ev intake.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *sinkRecorder) got() []intake.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]intake.Event(nil), s.events...)
}

func postHook(t *testing.T, h http.Handler, auth, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandler(t *testing.T) {
	rec := &sinkRecorder{}
	h := NewHandler("s3cret", rec.sink)

	res := postHook(t, h, "Bearer s3cret", textHook)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Ok", res.Body.String())
	require.Len(t, rec.got(), 1)
	assert.Equal(t, "привет", rec.got()[0].Payload)

	assert.Equal(t, http.StatusUnauthorized, postHook(t, h, "", textHook).Code)
	assert.Equal(t, http.StatusUnauthorized, postHook(t, h, "Bearer wrong", textHook).Code)
	assert.Equal(t, http.StatusUnauthorized, postHook(t, h, "s3cret", textHook).Code)
	assert.Equal(t, http.StatusBadRequest, postHook(t, h, "Bearer s3cret", "{").Code)

	res = postHook(t, h, "Bearer s3cret", `{"typeWebhook":"stateInstanceChanged"}`)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, rec.got(), 1)

	get := httptest.NewRecorder()
	h.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/hook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, get.Code)
}

func TestWebhookSinkFailure(t *testing.T) {
	rec := &sinkRecorder{err: intake.ErrLoopClosed}
	res := postHook(t, NewHandler("s3cret", rec.sink), "Bearer s3cret", textHook)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestWebhookRejectsEmptySecret(t *testing.T) {
	rec := &sinkRecorder{}
	res := postHook(t, NewHandler("", rec.sink), "Bearer ", textHook)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Empty(t, rec.got())
}

func newTestClient(url string) *Client {
	return NewClient(coreconfig.WhatsAppConfig{APIURL: url, InstanceID: "1101", Token: "tok", ReceiveTimeoutSeconds: 1})
}

func TestClientSendMessage(t *testing.T) {
	var (
		path string
		body map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"idMessage":"3EB0"}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).SendMessage(context.Background(), "1@c.us", "hi"))
	assert.Equal(t, "/waInstance1101/sendMessage/tok", path)
	assert.Equal(t, map[string]string{"chatId": "1@c.us", "message": "hi"}, body)
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad chatId"}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).SendMessage(context.Background(), "x", "hi")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode())
	assert.Equal(t, "sendMessage", apiErr.Method)
}

func TestClientNotifications(t *testing.T) {
	var (
		mu      sync.Mutex
		deleted []string
		query   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/waInstance1101/receiveNotification/tok":
			query = r.URL.RawQuery
			if len(deleted) > 0 {
				_, _ = w.Write([]byte("null"))
				return
			}
			_, _ = w.Write([]byte(`{"receiptId": 7, "body": ` + textHook + `}`))
		case r.Method == http.MethodDelete:
			deleted = append(deleted, r.URL.Path)
			_, _ = w.Write([]byte(`{"result": true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	n, err := c.ReceiveNotification(context.Background())
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, int64(7), n.ReceiptID)
	assert.Equal(t, "receiveTimeout=1", query)

	require.NoError(t, c.DeleteNotification(context.Background(), n.ReceiptID))
	assert.Equal(t, []string{"/waInstance1101/deleteNotification/tok/7"}, deleted)

	n, err = c.ReceiveNotification(context.Background())
	require.NoError(t, err)
	assert.Nil(t, n)
}

type fakeNotifier struct {
	mu      sync.Mutex
	queue   []*Notification
	deleted []int64
}

func (f *fakeNotifier) ReceiveNotification(ctx context.Context) (*Notification, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		n := f.queue[0]
		f.mu.Unlock()
		return n, nil
	}
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (f *fakeNotifier) DeleteNotification(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	if len(f.queue) > 0 && f.queue[0].ReceiptID == id {
		f.queue = f.queue[1:]
	}
	return nil
}

func (f *fakeNotifier) acked() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.deleted...)
}

func TestPollerForwardsAndAcknowledges(t *testing.T) {
	var text, state HookRoot
	require.NoError(t, json.Unmarshal([]byte(textHook), &text))
	state.TypeWebhook = "stateInstanceChanged"

	fn := &fakeNotifier{queue: []*Notification{{ReceiptID: 1, Body: state}, {ReceiptID: 2, Body: text}}}
	rec := &sinkRecorder{}
	p := NewPoller(fn, rec.sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(fn.acked()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2}, fn.acked())
	require.Len(t, rec.got(), 1)
	assert.Equal(t, "79140000000@c.us", rec.got()[0].ChatID)
}

func TestPollerKeepsNotificationOnSinkFailure(t *testing.T) {
	var text HookRoot
	require.NoError(t, json.Unmarshal([]byte(textHook), &text))
	fn := &fakeNotifier{queue: []*Notification{{ReceiptID: 9, Body: text}}}
	p := NewPoller(fn, func(context.Context, intake.Event) error { return errors.New("full") })
	p.backoff = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))
	assert.Empty(t, fn.acked())
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, chatID+": "+text)
	return nil
}

func TestTextSenderKeepsOrder(t *testing.T) {
	disp := sender.NewDispatcher(sender.Options{Workers: 2, Component: "wa.sender"})
	fm := &fakeMessenger{}
	s := NewTextSender(fm, disp)

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, s.Send(context.Background(), "1@c.us", text))
	}
	require.Error(t, s.Send(context.Background(), " ", "x"))
	disp.Close()

	assert.Equal(t, []string{"1@c.us: one", "1@c.us: two", "1@c.us: three"}, fm.sent)
}
