// Package session models one customer conversation of the print-shop bot:
// a forward-only state machine that collects images, a paper type and a
// print size before the order is submitted.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// State identifies the phase a conversation is in.
type State string

const (
	// FilesReceiving collects images until the customer says all files are sent.
	FilesReceiving State = "files_receiving"
	// PaperRequested waits for a paper type selection.
	PaperRequested State = "paper_requested"
	// SizeRequested waits for a print size selection.
	SizeRequested State = "size_requested"
	// SizeSelected waits for the customer to confirm the order.
	SizeSelected State = "size_selected"
)

var (
	// ErrInvalidTransition reports a transition attempted from an incompatible state.
	ErrInvalidTransition = errors.New("session: invalid transition")
	// ErrNotFound is returned when deleting a session that does not exist.
	ErrNotFound = errors.New("session: not found")
	// ErrParseFailure marks a non-numeric selection.
	ErrParseFailure = errors.New("session: selection is not a number")
	// ErrSelectionOutOfRange marks a numeric selection outside the offered list.
	ErrSelectionOutOfRange = errors.New("session: selection out of range")
	// ErrNoFiles is returned when a step needs at least one uploaded image.
	ErrNoFiles = errors.New("session: no files uploaded")
)

// Session is the in-progress order of one conversation.
type Session struct {
	ChatID       string
	CustomerName string
	Files        []string
	Paper        string
	Size         string
	Price        int
	Repeats      int
	LastActivity time.Time
	State        State
}

// New starts a conversation in FilesReceiving.
func New(chatID, customerName string, now time.Time) *Session {
	return &Session{
		ChatID:       chatID,
		CustomerName: customerName,
		LastActivity: now,
		State:        FilesReceiving,
	}
}

// Clone returns a deep copy; the Files slice is never shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Files != nil {
		c.Files = append([]string(nil), s.Files...)
	}
	return &c
}

// HasFiles reports whether at least one image was uploaded.
func (s *Session) HasFiles() bool {
	return len(s.Files) > 0
}

// Idle returns the time elapsed since the last activity.
func (s *Session) Idle(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// Touch records customer activity without changing the phase.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
}

// AddFile appends an image reference. Allowed in every phase.
func (s *Session) AddFile(ref string, now time.Time) {
	s.Files = append(s.Files, ref)
	s.Touch(now)
}

// FilesDone moves FilesReceiving to PaperRequested.
func (s *Session) FilesDone(now time.Time) error {
	if err := s.expect(FilesReceiving, PaperRequested); err != nil {
		return err
	}
	if !s.HasFiles() {
		return ErrNoFiles
	}
	s.advance(PaperRequested, now)
	return nil
}

// SelectPaper moves PaperRequested to SizeRequested with the chosen paper.
func (s *Session) SelectPaper(paper string, now time.Time) error {
	if err := s.expect(PaperRequested, SizeRequested); err != nil {
		return err
	}
	s.Paper = paper
	s.advance(SizeRequested, now)
	return nil
}

// SelectSize moves SizeRequested to SizeSelected with the chosen size and price.
func (s *Session) SelectSize(size string, price int, now time.Time) error {
	if err := s.expect(SizeRequested, SizeSelected); err != nil {
		return err
	}
	s.Size = size
	s.Price = price
	s.advance(SizeSelected, now)
	return nil
}

// DropPaper clears the paper of a SizeRequested session whose paper is no
// longer offered. The state stays; RepickPaper sets a new paper.
func (s *Session) DropPaper() error {
	if s.State != SizeRequested {
		return fmt.Errorf("%w: drop paper in %s", ErrInvalidTransition, s.State)
	}
	s.Paper = ""
	return nil
}

// RepickPaper sets the paper of a SizeRequested session left without one.
func (s *Session) RepickPaper(paper string, now time.Time) error {
	if s.State != SizeRequested || s.Paper != "" {
		return fmt.Errorf("%w: repick paper in %s", ErrInvalidTransition, s.State)
	}
	s.Paper = paper
	s.advance(SizeRequested, now)
	return nil
}

// CheckSubmit reports whether the session may leave SizeSelected as an order.
func (s *Session) CheckSubmit() error {
	if s.State != SizeSelected {
		return fmt.Errorf("%w: submit from %s", ErrInvalidTransition, s.State)
	}
	if !s.HasFiles() {
		return ErrNoFiles
	}
	return nil
}

// Reprompted records a sweep-driven reminder.
func (s *Session) Reprompted(now time.Time) {
	s.Repeats++
	s.LastActivity = now
}

func (s *Session) expect(from, to State) error {
	if s.State != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	return nil
}

// advance enters the next phase; every forward step starts a fresh reminder budget.
func (s *Session) advance(to State, now time.Time) {
	s.State = to
	s.Repeats = 0
	s.LastActivity = now
}

// ParseSelection converts a 1-based menu choice into a 0-based index for a
// list of n entries.
func ParseSelection(input string, n int) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrParseFailure, input)
	}
	if v < 1 || v > n {
		return 0, fmt.Errorf("%w: %d not in 1..%d", ErrSelectionOutOfRange, v, n)
	}
	return v - 1, nil
}
