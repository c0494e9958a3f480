// Package bootstrap prepares process infrastructure before the bot starts:
// logging and, for database-backed catalogs, Postgres with migrations.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/printbot/core/config"
	coredatabase "github.com/m3rciful/printbot/core/database"
	"github.com/m3rciful/printbot/core/logger"
)

const dbWaitTimeout = 30 * time.Second

// Options control the bootstrap pipeline. Nil hooks select the defaults.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	WaitForDB  func(ctx context.Context, cfg coredatabase.Config, timeout time.Duration) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	// DB is nil unless the catalog lives in Postgres.
	DB *sqlx.DB
}

// Close releases the database connection, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger and, when catalog.source is postgres, waits for
// the database, connects and applies migrations.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	if cfg.Catalog.Source != coreconfig.CatalogSourcePostgres {
		return &Result{}, nil
	}

	start := time.Now()
	wait := opts.WaitForDB
	if wait == nil {
		wait = coredatabase.WaitForPostgres
	}
	if err := wait(ctx, cfg.Database, dbWaitTimeout); err != nil {
		return nil, fmt.Errorf("bootstrap: database unavailable: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	logger.Info(ctx, "db", "db.ready",
		slog.String("status", "ok"),
		slog.String("host", cfg.Database.Host),
		slog.Duration("duration", logger.Took(start)),
	)
	return &Result{DB: db}, nil
}
