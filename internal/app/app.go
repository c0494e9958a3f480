// Package app assembles the print-shop bot: session store, catalog, order
// client, intake pipeline and the configured messaging transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/printbot/core/config"
	"github.com/m3rciful/printbot/core/logger"
	"github.com/m3rciful/printbot/core/sender"
	"github.com/m3rciful/printbot/internal/catalog"
	"github.com/m3rciful/printbot/internal/intake"
	"github.com/m3rciful/printbot/internal/orders"
	"github.com/m3rciful/printbot/internal/prompt"
	"github.com/m3rciful/printbot/internal/session"
)

// App owns the long-lived components of one bot process.
type App struct {
	cfg     *coreconfig.Config
	store   *session.MemoryStore
	catalog *catalog.Holder
	orders  intake.Submitter
	now     func() time.Time
}

// New loads the catalog and builds the shared components. db is required
// when catalog.source is postgres.
func New(ctx context.Context, cfg *coreconfig.Config, db *sqlx.DB) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	load, err := catalogLoader(cfg, db)
	if err != nil {
		return nil, err
	}
	holder, err := catalog.NewHolder(ctx, load)
	if err != nil {
		return nil, fmt.Errorf("app: load catalog: %w", err)
	}
	return &App{
		cfg:     cfg,
		store:   session.NewMemoryStore(),
		catalog: holder,
		orders:  orders.NewClient(cfg.Orders),
		now:     time.Now,
	}, nil
}

func catalogLoader(cfg *coreconfig.Config, db *sqlx.DB) (catalog.Loader, error) {
	if cfg.Catalog.Source != coreconfig.CatalogSourcePostgres {
		return catalog.FileLoader(cfg.Catalog.Path), nil
	}
	if db == nil {
		return nil, errors.New("app: postgres catalog without database")
	}
	return func(ctx context.Context) (*catalog.Catalog, error) {
		return catalog.LoadPostgres(ctx, db)
	}, nil
}

// pipeline is the intake side bound to one transport's sender.
type pipeline struct {
	loop    *intake.Loop
	sweeper *intake.Sweeper
}

func (a *App) buildPipeline(snd intake.Sender) (*pipeline, error) {
	in := a.cfg.Intake
	disp, err := intake.NewDispatcher(intake.Options{
		Store:       a.store,
		Catalog:     a.catalog,
		Sender:      snd,
		Submitter:   a.orders,
		Keywords:    intake.KeywordsFromConfig(in),
		Shop:        prompt.Shop{Address: a.cfg.Shop.Address, Phone: a.cfg.Shop.Phone},
		AdminChatID: a.cfg.AdminChatID,
		Now:         a.now,
	})
	if err != nil {
		return nil, err
	}
	sweeper, err := intake.NewSweeper(a.store, a.catalog, snd, intake.PolicyFromConfig(in), a.now)
	if err != nil {
		return nil, err
	}
	return &pipeline{loop: intake.NewLoop(disp, in.QueueSize), sweeper: sweeper}, nil
}

// start runs the loop, the sweep and the catalog watcher in the background.
// The returned stop cancels them and waits until they returned.
func (a *App) start(ctx context.Context, p *pipeline) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error(ctx, "app", "worker.exit",
					slog.String("status", "fail"),
					slog.String("worker", name),
					slog.String("err", err.Error()),
				)
			}
		}()
	}

	run("intake", p.loop.Run)
	run("sweep", p.sweeper.Run)
	if a.cfg.Catalog.Source == coreconfig.CatalogSourceFile && a.cfg.Catalog.Watch {
		run("catalog", func(ctx context.Context) error {
			return a.catalog.Watch(ctx, a.cfg.Catalog.Path)
		})
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

// Run serves the configured transport until ctx is done.
func (a *App) Run(ctx context.Context) error {
	switch a.cfg.Transport {
	case coreconfig.TransportWhatsApp:
		return a.runWhatsApp(ctx)
	default:
		return a.runTelegram(ctx)
	}
}

func senderOptions(cfg coreconfig.SenderConfig, component string) sender.Options {
	return sender.Options{
		QueueSize:    cfg.QueueSize,
		Workers:      cfg.Workers,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		MaxDuration:  cfg.MaxDuration,
		Component:    component,
	}
}
