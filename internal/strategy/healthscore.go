package strategy

import (
	"sync"

	"github.com/drsoft-oss/loadbalancer/internal/pool"
)

// scoreTieTolerance is how close two scores must be to count as tied.
const scoreTieTolerance = 0.001

// HealthScore ranks candidates by a composite of active connections and
// recent failures, round-robining among servers that tie for best score.
//
//	score = 1/(1+connections) * 1/(1+failures)
type HealthScore struct {
	mu           sync.Mutex
	lastSelected int
}

// NewHealthScore constructs a HealthScore strategy.
func NewHealthScore() *HealthScore {
	return &HealthScore{lastSelected: -1}
}

func (h *HealthScore) Name() string { return "health_score" }

func (h *HealthScore) SelectServer(candidates []pool.Entry) (pool.Entry, bool) {
	if len(candidates) == 0 {
		return pool.Entry{}, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	scores := make([]float64, len(candidates))
	best := -1.0
	for i, c := range candidates {
		connFactor := 1.0 / (1.0 + float64(c.ActiveConnections))
		failFactor := 1.0 / (1.0 + float64(c.Failures))
		scores[i] = connFactor * failFactor
		if scores[i] > best {
			best = scores[i]
		}
	}

	var bestServers []pool.Entry
	for i, s := range scores {
		if absDiff(s, best) < scoreTieTolerance {
			bestServers = append(bestServers, candidates[i])
		}
	}
	if len(bestServers) == 0 {
		return candidates[0], true
	}
	if len(bestServers) > 1 {
		h.lastSelected = (h.lastSelected + 1) % len(bestServers)
		return bestServers[h.lastSelected], true
	}
	return bestServers[0], true
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
