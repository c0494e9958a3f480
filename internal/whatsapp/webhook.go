package whatsapp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/printbot/core/logger"
	"github.com/m3rciful/printbot/internal/intake"
)

// Sink receives converted inbound events.
type Sink func(ctx context.Context, ev intake.Event) error

// NewHandler serves POST /hook. Requests must carry
// "Authorization: Bearer <secret>".
func NewHandler(secret string, sink Sink) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /hook", func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithHandler(r.Context(), "wa.hook")
		if !authorized(r.Header.Get("Authorization"), secret) {
			logger.Warn(ctx, "wa", "hook.auth",
				slog.String("status", "fail"),
				slog.String("remote", r.RemoteAddr),
			)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var hook HookRoot
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&hook); err != nil {
			logger.Warn(ctx, "wa", "hook.decode",
				slog.String("status", "invalid"),
				slog.String("err", err.Error()),
			)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		if err := deliver(ctx, hook, sink); err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "Ok")
	})
	return mux
}

// deliver forwards hook to sink. Webhooks without a customer message are
// acknowledged and ignored.
func deliver(ctx context.Context, hook HookRoot, sink Sink) error {
	ev, ok := hook.Event()
	if !ok {
		logger.Debug(ctx, "wa", "hook.skip",
			slog.String("status", "ignored"),
			slog.String("type", hook.TypeWebhook),
			slog.String("state", hook.StatusInstance),
		)
		return nil
	}
	ctx = logger.WithChat(ctx, ev.ChatID)
	if err := sink(ctx, ev); err != nil {
		logger.Warn(ctx, "wa", "hook.deliver",
			slog.String("status", "fail"),
			slog.String("kind", string(ev.Kind)),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}

func authorized(header, secret string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) == 1
}

// Server runs the webhook listener.
type Server struct {
	srv *http.Server
}

// NewServer listens on listen:port.
func NewServer(listen string, port int, h http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              net.JoinHostPort(listen, strconv.Itoa(port)),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()
	logger.Info(ctx, "wa", "mode",
		slog.String("mode", "webhook"),
		slog.String("listen", s.srv.Addr),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("whatsapp: webhook server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("whatsapp: webhook shutdown: %w", err)
	}
	return nil
}
