package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/printbot/core/config"
	"github.com/m3rciful/printbot/core/logger"
	"github.com/m3rciful/printbot/core/netutil"
	"github.com/m3rciful/printbot/core/sender"
	tghelpers "github.com/m3rciful/printbot/core/telegram/helpers"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of New and Run.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions sender.Options
	Dispatcher        *sender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt *Runtime) error
	OnStop  func(ctx context.Context, rt *Runtime) error
}

// Runtime is a constructed bot with its outbound dispatcher. Routes may be
// added until Run is called.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *sender.Dispatcher
	Registry   *Registry

	opts      RunOptions
	poller    tele.Poller
	buildTook time.Duration
}

// New builds the bot and the outbound dispatcher without starting them.
func New(opts RunOptions) (*Runtime, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("telegram: nil config provided")
	}
	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: netutil.NewHTTPClient(netutil.ClientOptions{}),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dopts := opts.DispatcherOptions
		if dopts.Component == "" {
			dopts.Component = "tg.sender"
		}
		dispatcher = sender.NewDispatcher(dopts)
	}
	tghelpers.SetDispatcher(dispatcher)

	return &Runtime{
		Bot:        bot,
		Dispatcher: dispatcher,
		Registry:   reg,
		opts:       opts,
		poller:     poller,
		buildTook:  time.Since(buildStart),
	}, nil
}

// Handle adds a route after construction.
func (rt *Runtime) Handle(routes ...Route) {
	rt.opts.Routes = append(rt.opts.Routes, routes...)
}

// Run wires middlewares and routes and serves updates until ctx is done.
func (rt *Runtime) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := rt.opts.Config
	rt.logMode(ctx)

	for _, mw := range rt.opts.Middlewares {
		if mw.Use == nil {
			continue
		}
		rt.Bot.Use(mw.Use)
	}
	for _, route := range rt.opts.Routes {
		if route.Endpoint == nil || route.Handler == nil {
			continue
		}
		rt.Bot.Handle(route.Endpoint, route.Handler)
	}
	InitBotCommands(rt.Bot, rt.Registry)

	if _, ok := rt.poller.(*tele.LongPoller); ok && !rt.opts.DisableWebhookCleanup {
		err := deleteWebhook(ctx, cfg.Telegram.Token, false)
		logger.Info(ctx, "tg", "delete_webhook",
			slog.String("status", logger.Status(err)),
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.String("err", errString(err)),
		)
	}

	if rt.opts.OnStart != nil {
		if err := rt.opts.OnStart(ctx, rt); err != nil {
			rt.close()
			return err
		}
	}

	runDone := make(chan struct{})
	go func() {
		rt.Bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		rt.Bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	var stopErr error
	if rt.opts.OnStop != nil {
		stopErr = rt.opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	rt.close()

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func (rt *Runtime) close() {
	rt.Dispatcher.Close()
	tghelpers.SetDispatcher(nil)
	logger.Info(context.Background(), "tg", "sender.closed",
		slog.String("status", "ok"),
		slog.Uint64("send_errors", rt.Dispatcher.ErrorCount()),
	)
}

func (rt *Runtime) logMode(ctx context.Context) {
	switch p := rt.poller.(type) {
	case *tele.Webhook:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(rt.buildTook)),
		)
	case *tele.LongPoller:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("timeout", p.Timeout),
			slog.Duration("duration", logger.RoundMS(rt.buildTook)),
		)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return sender.SanitizeError(err)
}

func deleteWebhook(ctx context.Context, token string, dropPending bool) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/deleteWebhook", token)
	body := "drop_pending_updates=false"
	if dropPending {
		body = "drop_pending_updates=true"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
