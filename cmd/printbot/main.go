package main

import (
	"context"
	"log"

	"github.com/m3rciful/printbot/core/bootstrap"
	corecmd "github.com/m3rciful/printbot/core/cmd"
	coreconfig "github.com/m3rciful/printbot/core/config"
	"github.com/m3rciful/printbot/internal/app"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		Bootstrap: func(ctx context.Context, cfg *coreconfig.Config) (corecmd.App, func() error, error) {
			res, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
			if err != nil {
				return nil, nil, err
			}
			a, err := app.New(ctx, cfg, res.DB)
			if err != nil {
				_ = res.Close()
				return nil, nil, err
			}
			return a, res.Close, nil
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
