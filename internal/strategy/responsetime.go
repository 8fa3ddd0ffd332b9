package strategy

import (
	"math/rand"
	"sync"
	"time"

	"github.com/drsoft-oss/loadbalancer/internal/pool"
)

const (
	responseTimeMaxHistory     = 100
	responseTimeExploreChance = 0.2
)

// ResponseTime biases selection toward the candidate with the lowest
// recent average response time. Servers with no history yet are
// round-robined to bootstrap data, and even once most servers have data
// the remaining cold servers get an occasional exploratory pick so their
// history never goes stale.
type ResponseTime struct {
	mu    sync.Mutex
	times map[string][]time.Duration
	rrIdx int
	rng   *rand.Rand
}

// NewResponseTime constructs a ResponseTime strategy.
func NewResponseTime() *ResponseTime {
	return &ResponseTime{
		times: make(map[string][]time.Duration),
		rng:   rand.New(rand.NewSource(1)),
	}
}

func (r *ResponseTime) Name() string { return "response_time" }

func (r *ResponseTime) RecordResponseTime(e pool.Entry, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := e.Key()
	hist := append(r.times[key], d)
	if over := len(hist) - responseTimeMaxHistory; over > 0 {
		hist = hist[over:]
	}
	r.times[key] = hist
}

func (r *ResponseTime) average(key string) (time.Duration, bool) {
	hist := r.times[key]
	if len(hist) == 0 {
		return 0, false
	}
	var total time.Duration
	for _, d := range hist {
		total += d
	}
	return total / time.Duration(len(hist)), true
}

func (r *ResponseTime) SelectServer(candidates []pool.Entry) (pool.Entry, bool) {
	if len(candidates) == 0 {
		return pool.Entry{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	type scored struct {
		entry pool.Entry
		avg   time.Duration
	}
	var withData []scored
	var withoutData []pool.Entry

	for _, c := range candidates {
		if avg, ok := r.average(c.Key()); ok {
			withData = append(withData, scored{c, avg})
		} else {
			withoutData = append(withoutData, c)
		}
	}

	if len(withData) == 0 {
		r.rrIdx = (r.rrIdx + 1) % len(candidates)
		return candidates[r.rrIdx], true
	}

	if len(withoutData) > 0 && len(withData) < len(candidates) {
		if r.rng.Float64() < responseTimeExploreChance {
			return withoutData[r.rng.Intn(len(withoutData))], true
		}
	}

	best := withData[0]
	for _, s := range withData[1:] {
		if s.avg < best.avg {
			best = s
		}
	}
	return best.entry, true
}
