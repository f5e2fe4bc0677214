// Package ledger tracks the user-visible generation credit balance.
package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/digkill/genstudio/internal/models"
)

var ErrInsufficientCredits = errors.New("insufficient credits")

type Ledger struct {
	mu    sync.Mutex
	state models.CreditState
	now   func() time.Time
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New restores a ledger from persisted state. Remaining is clamped to [0, Total].
func New(state models.CreditState, opts ...Option) *Ledger {
	if state.Total < 0 {
		state.Total = 0
	}
	if state.Remaining > state.Total {
		state.Remaining = state.Total
	}
	if state.Remaining < 0 {
		state.Remaining = 0
	}
	l := &Ledger{state: state, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Default is the state used when nothing has been persisted yet.
func Default(total int) models.CreditState {
	return models.CreditState{Remaining: total, Total: total, LastUpdated: time.Now().UTC()}
}

func (l *Ledger) Debit() (models.CreditState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.Remaining < 1 {
		return l.state, ErrInsufficientCredits
	}
	l.state.Remaining--
	l.state.LastUpdated = l.now().UTC()
	return l.state, nil
}

// Refund returns one credit for a request that settled as failed.
func (l *Ledger) Refund() models.CreditState {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.Remaining < l.state.Total {
		l.state.Remaining++
	}
	l.state.LastUpdated = l.now().UTC()
	return l.state
}

func (l *Ledger) Snapshot() models.CreditState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
