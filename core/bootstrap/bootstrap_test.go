package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/printbot/core/config"
	coredatabase "github.com/m3rciful/printbot/core/database"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunFileCatalogSkipsDatabase(t *testing.T) {
	cfg := &coreconfig.Config{Catalog: coreconfig.CatalogConfig{Source: coreconfig.CatalogSourceFile}}
	res, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			t.Fatal("connect must not be called")
			return nil, nil
		},
	})
	require.NoError(t, err)
	assert.Nil(t, res.DB)
	assert.NoError(t, res.Close())
}

func TestRunPostgresSteps(t *testing.T) {
	cfg := &coreconfig.Config{Catalog: coreconfig.CatalogConfig{Source: coreconfig.CatalogSourcePostgres}}
	var steps []string
	_, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		WaitForDB: func(context.Context, coredatabase.Config, time.Duration) error {
			steps = append(steps, "wait")
			return nil
		},
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			steps = append(steps, "connect")
			return nil, errors.New("refused")
		},
	})
	require.ErrorContains(t, err, "database initialization failed")
	assert.Equal(t, []string{"wait", "connect"}, steps)
}

func TestRunStopsOnUnavailableDatabase(t *testing.T) {
	cfg := &coreconfig.Config{Catalog: coreconfig.CatalogConfig{Source: coreconfig.CatalogSourcePostgres}}
	_, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		WaitForDB: func(context.Context, coredatabase.Config, time.Duration) error {
			return errors.New("timeout")
		},
	})
	require.ErrorContains(t, err, "database unavailable")
}

func TestRunFailsOnLoggerInit(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return errors.New("bad dir") },
	})
	require.ErrorContains(t, err, "logger init failed")

	_, err = Run(context.Background(), Options{})
	require.Error(t, err)
}
