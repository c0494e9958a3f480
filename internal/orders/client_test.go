package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/printbot/core/config"
	"github.com/m3rciful/printbot/internal/session"
)

func newTestClient(url string) *Client {
	return NewClient(coreconfig.OrdersConfig{URL: url, Token: "secret", Timeout: 2 * time.Second})
}

func TestSubmitPostsOrder(t *testing.T) {
	var (
		got     Order
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order_id":"A-17"}`))
	}))
	defer srv.Close()

	order := Order{Phone: "79140000000", Name: "Ivan", PaperType: "glossy", PaperSize: "10x15", Price: 22, Files: []string{"f1", "f2"}}
	id, err := newTestClient(srv.URL).Submit(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "A-17", id)
	assert.Equal(t, order, got)

	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	_, err = uuid.Parse(headers.Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestSubmitResponseShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "order_id", body: `{"order_id":"42"}`, want: "42"},
		{name: "numeric id", body: `{"id":42}`, want: "42"},
		{name: "plain text", body: "  A-9\n", want: "A-9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			id, err := newTestClient(srv.URL).Submit(context.Background(), Order{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, id)
		})
	}
}

func TestSubmitFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
		{name: "rejected", status: http.StatusBadRequest, body: `{"error":"bad"}`},
		{name: "empty id", status: http.StatusOK, body: `{"order_id":""}`},
		{name: "empty body", status: http.StatusOK, body: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Submit(context.Background(), Order{})
			require.ErrorIs(t, err, ErrSubmissionFailed)
		})
	}
}

func TestSubmitUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(url)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := c.Submit(ctx, Order{})
	require.ErrorIs(t, err, ErrSubmissionFailed)
}

func TestSubmitDoesNotResendAfterTimeout(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"order_id":"late"}`))
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(coreconfig.OrdersConfig{URL: srv.URL, Timeout: 200 * time.Millisecond})
	_, err := c.Submit(context.Background(), Order{Phone: "79140000000"})
	require.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFromSession(t *testing.T) {
	s := session.New("79140000000@c.us", "Ivan", time.Now())
	s.Files = []string{"a", "b"}
	s.Paper, s.Size, s.Price = "glossy", "10x15", 22

	o := FromSession(s)
	assert.Equal(t, Order{Phone: "79140000000", Name: "Ivan", PaperType: "glossy", PaperSize: "10x15", Price: 22, Files: []string{"a", "b"}}, o)

	o.Files[0] = "changed"
	assert.Equal(t, "a", s.Files[0])

	assert.Equal(t, "12345", PhoneFromChatID("12345"))
	assert.Contains(t, o.String(), "Телефон: 79140000000")
	assert.Contains(t, o.String(), "Файлы (2):")
}
