package strategy

import (
	"sync/atomic"

	"github.com/drsoft-oss/loadbalancer/internal/pool"
)

// RoundRobin cycles through candidates in the order they are presented.
// The cursor is a monotonically increasing counter rather than an index
// into a specific slice, so it tolerates the candidate set shrinking and
// growing between calls (spec.md Open Question: cursor skew on pool
// resize is accepted rather than corrected — see DESIGN.md).
type RoundRobin struct {
	cursor atomic.Uint64
}

// NewRoundRobin constructs a RoundRobin strategy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (r *RoundRobin) Name() string { return "round_robin" }

func (r *RoundRobin) SelectServer(candidates []pool.Entry) (pool.Entry, bool) {
	if len(candidates) == 0 {
		return pool.Entry{}, false
	}
	idx := r.cursor.Add(1) - 1
	return candidates[idx%uint64(len(candidates))], true
}
