package app

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/printbot/core/config"
	"github.com/m3rciful/printbot/core/logger"
	"github.com/m3rciful/printbot/core/sender"
	tg "github.com/m3rciful/printbot/core/telegram"
	"github.com/m3rciful/printbot/core/telegram/helpers"
	"github.com/m3rciful/printbot/internal/tgbot"
	"github.com/m3rciful/printbot/internal/whatsapp"
)

const rateLimited = "Слишком много сообщений, подождите немного."

func (a *App) runTelegram(ctx context.Context) error {
	cfg := a.cfg
	var stop func()
	rt, err := tg.New(tg.RunOptions{
		Config:            cfg,
		DispatcherOptions: senderOptions(cfg.Sender, "tg.sender"),
		Middlewares: tg.DefaultMiddlewares(cfg, func(c tele.Context) error {
			return helpers.SendText(c, rateLimited)
		}),
		// The dispatcher is closed right after OnStop, so the pipeline must
		// be idle by then.
		OnStop: func(context.Context, *tg.Runtime) error {
			if stop != nil {
				stop()
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	p, err := a.buildPipeline(tg.NewTextSender(rt.Bot, rt.Dispatcher))
	if err != nil {
		rt.Dispatcher.Close()
		return err
	}
	var cancelKeyword string
	if len(cfg.Intake.CancelKeywords) > 0 {
		cancelKeyword = cfg.Intake.CancelKeywords[0]
	}
	bot, err := tgbot.New(tgbot.Options{
		Sink:          p.loop.Submit,
		Store:         a.store,
		CancelKeyword: cancelKeyword,
		AdminID:       cfg.Telegram.AdminID,
		FileURL:       tgbot.FileURL(rt.Bot),
		Now:           a.now,
	})
	if err != nil {
		rt.Dispatcher.Close()
		return err
	}
	bot.Register(rt.Registry)
	rt.Handle(bot.Routes(rt.Registry)...)

	stop = a.start(ctx, p)
	defer stop()
	return rt.Run(ctx)
}

func (a *App) runWhatsApp(ctx context.Context) error {
	cfg := a.cfg
	client := whatsapp.NewClient(cfg.WhatsApp)
	disp := sender.NewDispatcher(senderOptions(cfg.Sender, "wa.sender"))
	defer func() {
		disp.Close()
		logger.Info(context.Background(), "wa", "sender.closed",
			slog.String("status", "ok"),
			slog.Uint64("send_errors", disp.ErrorCount()),
		)
	}()

	p, err := a.buildPipeline(whatsapp.NewTextSender(client, disp))
	if err != nil {
		return err
	}
	stop := a.start(ctx, p)
	defer stop()

	sink := whatsapp.Sink(p.loop.Submit)
	if cfg.WhatsApp.RunMode == coreconfig.RunModeLongpoll {
		return whatsapp.NewPoller(client, sink).Run(ctx)
	}
	logger.Info(ctx, "wa", "wire",
		slog.String("status", "ok"),
		slog.String("instance", cfg.WhatsApp.InstanceID),
		slog.Int("port", cfg.Webhook.Port),
	)
	srv := whatsapp.NewServer(cfg.Webhook.Listen, cfg.Webhook.Port, whatsapp.NewHandler(cfg.Webhook.Secret, sink))
	return srv.Run(ctx)
}
