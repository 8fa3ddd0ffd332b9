package strategy

import (
	"sync"

	"github.com/drsoft-oss/loadbalancer/internal/pool"
)

// weightForFailures maps a server's consecutive-failure count to a
// stickiness weight: stable servers keep the cursor longer.
func weightForFailures(failures uint32) int {
	switch {
	case failures == 0:
		return 10
	case failures == 1:
		return 5
	default:
		return 1
	}
}

// WeightedRoundRobin is a failure-aware round robin: it stays on the
// current server for a number of requests proportional to that server's
// recent stability (fewer failures keeps the cursor there longer) before
// advancing to the next candidate in order.
type WeightedRoundRobin struct {
	mu              sync.Mutex
	serverIndex     int
	currentKey      string
	weightRemaining int
}

// NewWeightedRoundRobin constructs a WeightedRoundRobin strategy.
func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{}
}

func (w *WeightedRoundRobin) Name() string { return "weighted_round_robin" }

func (w *WeightedRoundRobin) SelectServer(candidates []pool.Entry) (pool.Entry, bool) {
	if len(candidates) == 0 {
		return pool.Entry{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	stillPresent := false
	if w.currentKey != "" {
		for _, c := range candidates {
			if c.Key() == w.currentKey {
				stillPresent = true
				break
			}
		}
	}

	if w.currentKey == "" || !stillPresent || w.weightRemaining <= 0 {
		w.serverIndex = 0
		cur := candidates[w.serverIndex]
		w.currentKey = cur.Key()
		w.weightRemaining = weightForFailures(cur.Failures)
	}

	var current pool.Entry
	found := false
	for _, c := range candidates {
		if c.Key() == w.currentKey {
			current = c
			found = true
			break
		}
	}
	if !found {
		current = candidates[0]
		w.currentKey = current.Key()
		w.weightRemaining = weightForFailures(current.Failures)
	}

	w.weightRemaining--
	if w.weightRemaining <= 0 {
		w.serverIndex = (w.serverIndex + 1) % len(candidates)
		next := candidates[w.serverIndex]
		w.currentKey = next.Key()
		w.weightRemaining = weightForFailures(next.Failures)
	}

	return current, true
}
