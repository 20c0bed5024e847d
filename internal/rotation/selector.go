// Package rotation picks messages from a bucketed pool while suppressing
// recent repeats.
package rotation

import (
	"math/rand"

	"herald/internal/model"
)

// Rand is the subset of *rand.Rand the selector needs.
type Rand interface {
	Intn(n int) int
}

// Selector draws messages from a pool, skipping those in the recent history.
type Selector struct {
	pool    PoolSource
	history *HistoryStore
	rng     Rand
}

func NewSelector(pool PoolSource, history *HistoryStore, rng Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Selector{pool: pool, history: history, rng: rng}
}

// Choose picks a message for bucket without recording it. ok is false when
// the bucket is absent or empty.
func (s *Selector) Choose(bucket model.Bucket) (msg string, ok bool, err error) {
	pool, err := s.pool.Load()
	if err != nil {
		return "", false, err
	}
	list := pool[bucket]
	if len(list) == 0 {
		return "", false, nil
	}
	h, err := s.history.Load()
	if err != nil {
		return "", false, err
	}
	recent := make(map[string]struct{}, len(h[bucket]))
	for _, m := range h[bucket] {
		recent[m] = struct{}{}
	}
	available := make([]string, 0, len(list))
	for _, m := range list {
		if _, seen := recent[m]; !seen {
			available = append(available, m)
		}
	}
	// Everything was used within the window: allow repeats.
	if len(available) == 0 {
		available = list
	}
	return available[s.rng.Intn(len(available))], true, nil
}

// Remember records msg as the newest pick for bucket.
func (s *Selector) Remember(bucket model.Bucket, msg string) error {
	return s.history.Push(bucket, msg)
}

// Select chooses a message and records it in the history immediately,
// before it is published.
func (s *Selector) Select(bucket model.Bucket) (string, bool, error) {
	msg, ok, err := s.Choose(bucket)
	if err != nil || !ok {
		return msg, ok, err
	}
	return msg, true, s.Remember(bucket, msg)
}
