package intake

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/m3rciful/printbot/core/logger"
)

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// Loop serializes inbound events through a single worker, so events of
// one chat are handled in arrival order.
type Loop struct {
	handler Handler
	events  chan Event

	mu      sync.RWMutex
	closed  bool
	running bool
}

// NewLoop creates a loop with a buffered queue of size entries.
func NewLoop(h Handler, size int) *Loop {
	if size <= 0 {
		size = 1
	}
	return &Loop{handler: h, events: make(chan Event, size)}
}

// Submit enqueues ev, blocking while the queue is full.
func (l *Loop) Submit(ctx context.Context, ev Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrLoopClosed
	}
	select {
	case l.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run handles events until ctx is done. Events still queued at that point
// are dropped and counted in the log.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running || l.closed {
		l.mu.Unlock()
		return errors.New("intake: loop already started")
	}
	l.running = true
	l.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			l.close(ctx)
			return nil
		case ev := <-l.events:
			l.handle(ctx, ev)
		}
	}
}

func (l *Loop) handle(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "intake", "intake.panic",
				slog.String("status", "fail"),
				slog.String("chat_id", ev.ChatID),
				slog.Any("cause", r),
			)
		}
	}()
	if err := l.handler.Handle(ctx, ev); err != nil {
		logger.Warn(ctx, "intake", "intake.handle",
			slog.String("status", "fail"),
			slog.String("chat_id", ev.ChatID),
			slog.String("kind", string(ev.Kind)),
			slog.String("err", err.Error()),
		)
	}
}

// close rejects further submissions. Writers blocked in Submit hold the read
// lock, so draining first lets them finish before the lock is taken.
func (l *Loop) close(ctx context.Context) {
	dropped := 0
	done := make(chan struct{})
	go func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(done)
	}()
drain:
	for {
		select {
		case <-l.events:
			dropped++
		case <-done:
			break drain
		}
	}
	for len(l.events) > 0 {
		<-l.events
		dropped++
	}
	if dropped > 0 {
		logger.Warn(context.WithoutCancel(ctx), "intake", "intake.stop",
			slog.String("status", "skip"),
			slog.Int("dropped", dropped),
		)
	}
}
