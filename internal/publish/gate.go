package publish

import (
	"math/rand"
	"time"
)

const (
	DefaultInterval = 24 * time.Hour
	DefaultOdds     = 8
)

// Rand is the subset of *rand.Rand the gate needs.
type Rand interface {
	Intn(n int) int
}

// Gate decides whether a scheduler tick should publish: a hard minimum
// interval since the last successful publish, then a 1-in-odds roll.
type Gate struct {
	interval time.Duration
	odds     int
	rng      Rand
	store    *StateStore
	last     time.Time
}

// NewGate seeds the gate from the persisted state.
func NewGate(store *StateStore, interval time.Duration, odds int, rng Rand) (*Gate, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if odds <= 0 {
		odds = DefaultOdds
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	g := &Gate{interval: interval, odds: odds, rng: rng, store: store}
	st, err := store.Load()
	if err != nil {
		return g, err
	}
	if t, ok := st.LastPost(); ok {
		g.last = t
	}
	return g, nil
}

// LastPost returns the last publish time known to the gate.
func (g *Gate) LastPost() (time.Time, bool) { return g.last, !g.last.IsZero() }

// CanPostNow reports whether the minimum interval has elapsed.
func (g *Gate) CanPostNow(now time.Time) bool {
	return g.last.IsZero() || now.Sub(g.last) >= g.interval
}

// Remaining is the time left until CanPostNow turns true.
func (g *Gate) Remaining(now time.Time) time.Duration {
	if g.CanPostNow(now) {
		return 0
	}
	return g.interval - now.Sub(g.last)
}

// Roll draws a uniform integer in [1, odds] and reports whether it is 1.
func (g *Gate) Roll() bool { return g.rng.Intn(g.odds)+1 == 1 }

// MarkPublished records a successful publish at now and persists it.
func (g *Gate) MarkPublished(now time.Time) error {
	g.last = now
	ms := now.UnixMilli()
	return g.store.Update(func(st *State) { st.LastPostMS = &ms })
}
