// internal/entitlement/tracker.go
package entitlement

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoActiveSubscription = errors.New("no active subscription window")
	ErrEntitlementExhausted = errors.New("free redemptions exhausted for current window")
)

const (
	DefaultWindowLength = 30 * 24 * time.Hour
	DefaultAllowance    = 3
)

// Window is the persisted per-user subscription allowance. A nil Start means the
// user never opted into the subscription.
type Window struct {
	UserID   uuid.UUID  `json:"user_id" db:"user_id"`
	Start    *time.Time `json:"window_start,omitempty" db:"window_start"`
	Consumed int        `json:"redemptions_consumed" db:"redemptions_consumed"`
	Version  int        `json:"version" db:"version"`
}

// Decision tells the ledger whether the next redemption is covered.
type Decision struct {
	IsFree         bool `json:"is_free"`
	RemainingAfter int  `json:"remaining_after"`
}

// Summary is the read-only view shown to clients.
type Summary struct {
	Active      bool       `json:"active"`
	Allowance   int        `json:"allowance"`
	Consumed    int        `json:"consumed"`
	Remaining   int        `json:"remaining"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
}

// Tracker evaluates windows lazily against the supplied clock value; it holds no
// per-user state of its own.
type Tracker struct {
	length    time.Duration
	allowance int
}

// NewTracker falls back to a 30 day window with 3 free redemptions.
func NewTracker(length time.Duration, allowance int) *Tracker {
	if length <= 0 {
		length = DefaultWindowLength
	}
	if allowance <= 0 {
		allowance = DefaultAllowance
	}
	return &Tracker{length: length, allowance: allowance}
}

// Allowance is the number of free redemptions per window.
func (t *Tracker) Allowance() int { return t.allowance }

// WindowLength is how long a window stays active after it starts.
func (t *Tracker) WindowLength() time.Duration { return t.length }

// HasActiveWindow reports whether now falls inside the window.
func (t *Tracker) HasActiveWindow(w *Window, now time.Time) bool {
	if w == nil || w.Start == nil {
		return false
	}
	return now.Sub(*w.Start) < t.length
}

// RemainingFreeRedemptions is always within [0, allowance].
func (t *Tracker) RemainingFreeRedemptions(w *Window, now time.Time) int {
	if !t.HasActiveWindow(w, now) {
		return 0
	}
	r := t.allowance - w.Consumed
	if r < 0 {
		return 0
	}
	return r
}

// Decide does not mutate w; a free decision must be followed by Consume.
func (t *Tracker) Decide(w *Window, now time.Time) Decision {
	r := t.RemainingFreeRedemptions(w, now)
	if r > 0 {
		return Decision{IsFree: true, RemainingAfter: r - 1}
	}
	return Decision{}
}

// Consume spends one free redemption.
func (t *Tracker) Consume(w *Window, now time.Time) error {
	if !t.HasActiveWindow(w, now) {
		return ErrNoActiveSubscription
	}
	if t.RemainingFreeRedemptions(w, now) == 0 {
		return ErrEntitlementExhausted
	}
	w.Consumed++
	return nil
}

// StartWindow begins a new period at now and returns w. Unused redemptions of
// a previous period are forfeited. A nil w yields a fresh window the caller
// must attach to a user.
func (t *Tracker) StartWindow(w *Window, now time.Time) *Window {
	if w == nil {
		w = &Window{}
	}
	start := now
	w.Start = &start
	w.Consumed = 0
	return w
}

// WindowEnd returns the instant the window lapses, or nil if it never started.
func (t *Tracker) WindowEnd(w *Window) *time.Time {
	if w == nil || w.Start == nil {
		return nil
	}
	end := w.Start.Add(t.length)
	return &end
}

// Summarize builds the client view at now.
func (t *Tracker) Summarize(w *Window, now time.Time) Summary {
	s := Summary{
		Allowance: t.allowance,
		Active:    t.HasActiveWindow(w, now),
		Remaining: t.RemainingFreeRedemptions(w, now),
	}
	if w != nil && w.Start != nil {
		start := *w.Start
		s.WindowStart = &start
		s.WindowEnd = t.WindowEnd(w)
		if s.Active {
			s.Consumed = w.Consumed
		}
	}
	return s
}
