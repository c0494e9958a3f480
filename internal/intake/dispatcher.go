package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/printbot/core/logger"
	"github.com/m3rciful/printbot/internal/catalog"
	"github.com/m3rciful/printbot/internal/orders"
	"github.com/m3rciful/printbot/internal/prompt"
	"github.com/m3rciful/printbot/internal/session"
)

// Options wires a Dispatcher.
type Options struct {
	Store     session.Store
	Catalog   *catalog.Holder
	Sender    Sender
	Submitter Submitter
	Keywords  Keywords
	Shop      prompt.Shop
	// AdminChatID receives order summaries of failed submissions; empty disables.
	AdminChatID string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Dispatcher applies inbound events to sessions.
type Dispatcher struct {
	store     session.Store
	catalog   *catalog.Holder
	sender    Sender
	submitter Submitter
	keywords  Keywords
	shop      prompt.Shop
	admin     string
	now       func() time.Time
}

// NewDispatcher validates opts and builds a Dispatcher.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("intake: nil store")
	case opts.Catalog == nil:
		return nil, errors.New("intake: nil catalog")
	case opts.Sender == nil:
		return nil, errors.New("intake: nil sender")
	case opts.Submitter == nil:
		return nil, errors.New("intake: nil submitter")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		store:     opts.Store,
		catalog:   opts.Catalog,
		sender:    opts.Sender,
		submitter: opts.Submitter,
		keywords:  opts.Keywords,
		shop:      opts.Shop,
		admin:     strings.TrimSpace(opts.AdminChatID),
		now:       now,
	}, nil
}

// step is what one event decided under the store lock.
type step struct {
	outcome string
	from    session.State
	to      session.State
	reply   string
	order   *orders.Order
	err     error
}

// Handle applies ev. The transition is computed inside one Store.Update;
// prompts and submission happen after the lock is released. Once started,
// the work is not cancelled by ctx.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	if strings.TrimSpace(ev.ChatID) == "" || (ev.Kind != KindText && ev.Kind != KindImage) {
		return fmt.Errorf("%w: chat=%q kind=%q", ErrInvalidEvent, ev.ChatID, ev.Kind)
	}
	ctx = context.WithoutCancel(ctx)
	ctx = logger.WithHandler(logger.WithChat(ctx, ev.ChatID), "intake")
	start := time.Now()

	cat := d.catalog.Current()
	var st step
	err := d.store.Update(ev.ChatID, func(cur *session.Session) (*session.Session, error) {
		next, s := d.apply(cat, cur, ev)
		st = s
		return next, nil
	})
	if err != nil {
		return err
	}

	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("kind", string(ev.Kind)),
		slog.String("from", string(st.from)),
		slog.String("to", string(st.to)),
		slog.String("outcome", st.outcome),
		slog.Duration("duration", logger.Took(start)),
	}
	if st.err != nil {
		attrs = append(attrs, slog.String("cause", st.err.Error()))
	}
	logger.Debug(ctx, "intake", "intake.event", attrs...)

	if st.order != nil {
		return d.submit(ctx, ev.ChatID, *st.order)
	}
	if st.reply == "" {
		return nil
	}
	return d.send(ctx, ev.ChatID, st.reply)
}

// apply runs the state machine for one event. cur is the store's copy (nil
// when absent); the returned session replaces it and nil deletes it.
func (d *Dispatcher) apply(cat *catalog.Catalog, cur *session.Session, ev Event) (*session.Session, step) {
	now := d.now()

	if cur == nil {
		s := session.New(ev.ChatID, ev.CustomerName, now)
		st := step{outcome: "created", to: s.State, reply: prompt.Greeting()}
		if ev.Kind == KindImage {
			s.AddFile(ev.Payload, now)
			st.reply = prompt.FilesReceived()
		}
		return s, st
	}

	st := step{from: cur.State, to: cur.State}
	if cur.CustomerName == "" {
		cur.CustomerName = ev.CustomerName
	}

	if ev.Kind == KindImage {
		cur.AddFile(ev.Payload, now)
		st.outcome = "appended"
		st.err = dropStalePaper(cat, cur)
		if cur.State != session.FilesReceiving {
			st.reply = prompt.Phase(cat, cur)
		}
		return cur, st
	}

	if matches(d.keywords.Cancel, ev.Payload) {
		st.to = ""
		st.outcome = "cancelled"
		st.reply = prompt.Cancelled()
		return nil, st
	}

	cur.Touch(now)
	if err := dropStalePaper(cat, cur); err != nil {
		st.outcome = "invalid"
		st.err = err
		st.reply = prompt.Phase(cat, cur)
		return cur, st
	}

	switch cur.State {
	case session.FilesReceiving:
		if matches(d.keywords.FilesDone, ev.Payload) {
			st.err = cur.FilesDone(now)
		} else {
			st.err = errNoKeyword
		}

	case session.PaperRequested:
		var idx int
		if idx, st.err = session.ParseSelection(ev.Payload, cat.Len()); st.err == nil {
			paper, _ := cat.PaperAt(idx)
			st.err = cur.SelectPaper(paper, now)
		}

	case session.SizeRequested:
		if cur.Paper == "" {
			// The paper menu was re-sent; the answer picks a new paper.
			var idx int
			if idx, st.err = session.ParseSelection(ev.Payload, cat.Len()); st.err == nil {
				paper, _ := cat.PaperAt(idx)
				st.err = cur.RepickPaper(paper, now)
			}
			break
		}
		var idx int
		if idx, st.err = session.ParseSelection(ev.Payload, len(cat.Sizes(cur.Paper))); st.err == nil {
			size, _ := cat.SizeAt(cur.Paper, idx)
			st.err = cur.SelectSize(size.Label, size.Price, now)
		}

	case session.SizeSelected:
		if matches(d.keywords.Ready, ev.Payload) {
			if st.err = cur.CheckSubmit(); st.err == nil {
				o := orders.FromSession(cur)
				st.to = ""
				st.outcome = "submitted"
				st.order = &o
				return nil, st
			}
		} else {
			st.err = errNoKeyword
		}
	}

	st.to = cur.State
	if st.err != nil {
		st.outcome = "invalid"
	} else {
		st.outcome = "advanced"
	}
	st.reply = prompt.Phase(cat, cur)
	return cur, st
}

var (
	errNoKeyword = errors.New("intake: expected keyword missing")
	errPaperGone = errors.New("intake: paper no longer offered")
)

// dropStalePaper clears the paper of a SizeRequested session when cat no
// longer lists sizes for it, as after a catalog reload.
func dropStalePaper(cat *catalog.Catalog, cur *session.Session) error {
	if cur.State != session.SizeRequested || cur.Paper == "" || len(cat.Sizes(cur.Paper)) > 0 {
		return nil
	}
	paper := cur.Paper
	if err := cur.DropPaper(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %q", errPaperGone, paper)
}

// submit runs the submission path of a session that is already deleted.
func (d *Dispatcher) submit(ctx context.Context, chatID string, o orders.Order) error {
	var errs []error
	if err := d.send(ctx, chatID, prompt.Wait()); err != nil {
		errs = append(errs, err)
	}

	orderID, err := d.submitter.Submit(ctx, o)
	if err != nil {
		logger.Error(ctx, "intake", "intake.submit",
			slog.String("status", "fail"),
			slog.String("outcome", "fail"),
			slog.String("paper", o.PaperType),
			slog.String("size", o.PaperSize),
			slog.Int("files", len(o.Files)),
			slog.String("err", err.Error()),
		)
		if sendErr := d.send(ctx, chatID, prompt.Failed()); sendErr != nil {
			errs = append(errs, sendErr)
		}
		if d.admin != "" {
			if sendErr := d.send(ctx, d.admin, prompt.AdminFailure(o, err)); sendErr != nil {
				errs = append(errs, sendErr)
			}
		}
		return errors.Join(append([]error{err}, errs...)...)
	}

	logger.Info(ctx, "intake", "intake.submit",
		slog.String("status", "ok"),
		slog.String("outcome", "submitted"),
		slog.String("order_id", orderID),
		slog.String("paper", o.PaperType),
		slog.String("size", o.PaperSize),
		slog.Int("price", o.Price),
		slog.Int("files", len(o.Files)),
	)
	if err := d.send(ctx, chatID, prompt.Accepted(orderID, d.shop)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, chatID, text string) error {
	if err := d.sender.Send(ctx, chatID, text); err != nil {
		logger.Warn(ctx, "intake", "intake.send",
			slog.String("status", "fail"),
			slog.String("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%w: %s: %v", ErrDeliveryFailed, chatID, err)
	}
	return nil
}
