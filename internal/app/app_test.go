package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/printbot/core/config"
	"github.com/m3rciful/printbot/internal/intake"
	"github.com/m3rciful/printbot/internal/orders"
	"github.com/m3rciful/printbot/internal/prompt"
)

const catalogJSON = `[
	{"name": "глянцевая", "sizes": [{"size": "10x15", "price": 22}, {"size": "15x21", "price": 45}]},
	{"name": "матовая", "sizes": [{"size": "10x15", "price": 25}]}
]`

type recordingSender struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingSender) Send(_ context.Context, _, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingSender) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func testConfig(t *testing.T, ordersURL string) *coreconfig.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0o600))
	return &coreconfig.Config{
		Transport: coreconfig.TransportWhatsApp,
		Catalog:   coreconfig.CatalogConfig{Source: coreconfig.CatalogSourceFile, Path: path},
		Orders:    coreconfig.OrdersConfig{URL: ordersURL, Timeout: 2 * time.Second},
		Shop:      coreconfig.ShopConfig{Address: "ул. Ленина, 1", Phone: "+7 900 000-00-00"},
		Intake: coreconfig.IntakeConfig{
			SweepInterval:     time.Hour,
			NoFilesTimeout:    time.Minute,
			RepeatInterval:    30 * time.Second,
			MaxRepeats:        3,
			QueueSize:         16,
			CancelKeywords:    []string{"отмен"},
			FilesDoneKeywords: []string{"все", "всё"},
			ReadyKeywords:     []string{"готов"},
		},
	}
}

func TestNewRequiresDatabaseForPostgresCatalog(t *testing.T) {
	cfg := testConfig(t, "http://orders.invalid")
	cfg.Catalog.Source = coreconfig.CatalogSourcePostgres
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)

	_, err = New(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestNewFailsOnMissingCatalog(t *testing.T) {
	cfg := testConfig(t, "http://orders.invalid")
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.json")
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestPipelineSubmitsOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got []orders.Order
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var o orders.Order
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&o))
		mu.Lock()
		got = append(got, o)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"order_id":"A-17"}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	snd := &recordingSender{}
	p, err := a.buildPipeline(snd)
	require.NoError(t, err)
	stop := a.start(context.Background(), p)
	defer stop()

	const chat = "79140000000@c.us"
	for _, ev := range []intake.Event{
		{ChatID: chat, CustomerName: "Ivan", Kind: intake.KindImage, Payload: "https://files/1.jpg"},
		{ChatID: chat, CustomerName: "Ivan", Kind: intake.KindText, Payload: "Все"},
		{ChatID: chat, CustomerName: "Ivan", Kind: intake.KindText, Payload: "1"},
		{ChatID: chat, CustomerName: "Ivan", Kind: intake.KindText, Payload: "2"},
		{ChatID: chat, CustomerName: "Ivan", Kind: intake.KindText, Payload: "Готово"},
	} {
		require.NoError(t, p.loop.Submit(context.Background(), ev))
	}

	shop := prompt.Shop{Address: cfg.Shop.Address, Phone: cfg.Shop.Phone}
	require.Eventually(t, func() bool {
		texts := snd.all()
		return len(texts) > 0 && texts[len(texts)-1] == prompt.Accepted("A-17", shop)
	}, 2*time.Second, 10*time.Millisecond)
	stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, orders.Order{
		Phone:     "79140000000",
		Name:      "Ivan",
		PaperType: "глянцевая",
		PaperSize: "15x21",
		Price:     45,
		Files:     []string{"https://files/1.jpg"},
	}, got[0])
	assert.Zero(t, a.store.Len())
}

func TestSenderOptions(t *testing.T) {
	opts := senderOptions(coreconfig.SenderConfig{Workers: 2, MaxRetries: 1}, "wa.sender")
	assert.Equal(t, 2, opts.Workers)
	assert.Equal(t, 1, opts.MaxRetries)
	assert.Equal(t, "wa.sender", opts.Component)
}
