package intake

import (
	"context"
	"errors"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/printbot/core/config"
	"github.com/m3rciful/printbot/core/logger"
	"github.com/m3rciful/printbot/internal/catalog"
	"github.com/m3rciful/printbot/internal/prompt"
	"github.com/m3rciful/printbot/internal/session"
)

// SweepPolicy holds the idle limits applied on every pass.
type SweepPolicy struct {
	Interval       time.Duration
	NoFilesTimeout time.Duration
	RepeatInterval time.Duration
	MaxRepeats     int
}

// PolicyFromConfig extracts the sweep policy from the intake config.
func PolicyFromConfig(cfg coreconfig.IntakeConfig) SweepPolicy {
	return SweepPolicy{
		Interval:       cfg.SweepInterval,
		NoFilesTimeout: cfg.NoFilesTimeout,
		RepeatInterval: cfg.RepeatInterval,
		MaxRepeats:     cfg.MaxRepeats,
	}
}

// SweepResult counts what a single pass did.
type SweepResult struct {
	Scanned    int
	Reprompted int
	Evicted    int
	Failed     int
}

// Sweeper re-prompts and evicts idle sessions.
type Sweeper struct {
	store   session.Store
	catalog *catalog.Holder
	sender  Sender
	policy  SweepPolicy
	now     func() time.Time
}

// NewSweeper builds a Sweeper. now defaults to time.Now.
func NewSweeper(store session.Store, cat *catalog.Holder, sender Sender, policy SweepPolicy, now func() time.Time) (*Sweeper, error) {
	if store == nil || cat == nil || sender == nil {
		return nil, errors.New("intake: sweeper needs store, catalog and sender")
	}
	if policy.Interval <= 0 {
		return nil, errors.New("intake: sweep interval must be > 0")
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{store: store, catalog: cat, sender: sender, policy: policy, now: now}, nil
}

type sweepAction int

const (
	sweepKeep sweepAction = iota
	sweepReprompt
	sweepEvict
)

// decide applies the idle policy to s, mutating it on re-prompt.
func (w *Sweeper) decide(s *session.Session, now time.Time) sweepAction {
	idle := s.Idle(now)
	if !s.HasFiles() {
		if idle > w.policy.NoFilesTimeout {
			return sweepEvict
		}
		return sweepKeep
	}
	if s.Repeats >= w.policy.MaxRepeats {
		return sweepEvict
	}
	if idle > w.policy.RepeatInterval {
		s.Reprompted(now)
		return sweepReprompt
	}
	return sweepKeep
}

// Sweep runs one pass over a snapshot of the store. Each decision is taken
// inside Store.Update so it sees the latest state of the session.
func (w *Sweeper) Sweep(ctx context.Context) SweepResult {
	start := time.Now()
	cat := w.catalog.Current()
	var res SweepResult

	for _, snap := range w.store.List() {
		res.Scanned++
		var (
			action  sweepAction
			text    string
			state   session.State
			idle    time.Duration
			repeats int
		)
		now := w.now()
		_ = w.store.Update(snap.ChatID, func(cur *session.Session) (*session.Session, error) {
			if cur == nil {
				action = sweepKeep
				return nil, nil
			}
			state, idle, repeats = cur.State, cur.Idle(now), cur.Repeats
			action = w.decide(cur, now)
			switch action {
			case sweepEvict:
				return nil, nil
			case sweepReprompt:
				_ = dropStalePaper(cat, cur)
				text = prompt.Phase(cat, cur)
			}
			return cur, nil
		})

		chatCtx := logger.WithChat(ctx, snap.ChatID)
		switch action {
		case sweepEvict:
			res.Evicted++
			text = prompt.Abandoned()
			logger.Info(chatCtx, "intake.sweep", "sweep.evict",
				slog.String("status", "evicted"),
				slog.String("outcome", "abandoned"),
				slog.String("phase", string(state)),
				slog.Int("repeats", repeats),
				slog.Duration("idle", idle),
			)
		case sweepReprompt:
			res.Reprompted++
			logger.Debug(chatCtx, "intake.sweep", "sweep.reprompt",
				slog.String("status", "ok"),
				slog.String("outcome", "reprompt"),
				slog.String("phase", string(state)),
				slog.Duration("idle", idle),
			)
		default:
			continue
		}
		if err := w.sender.Send(chatCtx, snap.ChatID, text); err != nil {
			res.Failed++
			logger.Warn(chatCtx, "intake.sweep", "sweep.send",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}

	if res.Reprompted > 0 || res.Evicted > 0 {
		logger.Info(ctx, "intake.sweep", "sweep.pass",
			slog.String("status", "ok"),
			slog.Int("sessions", res.Scanned),
			slog.Int("reprompted", res.Reprompted),
			slog.Int("evicted", res.Evicted),
			slog.Duration("duration", logger.Took(start)),
		)
	}
	return res
}

// Run sweeps on every tick until ctx is done. A pass that has started is
// finished even if ctx ends meanwhile.
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.policy.Interval)
	defer ticker.Stop()
	passCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sweep(passCtx)
		}
	}
}
