package strategy

import (
	"sync"

	"github.com/drsoft-oss/loadbalancer/internal/pool"
)

// LeastConnections picks the candidate with the fewest active
// connections, rotating through the tied set via idx rather than
// always returning the first one encountered.
type LeastConnections struct {
	mu  sync.Mutex
	idx int
}

// NewLeastConnections constructs a LeastConnections strategy.
func NewLeastConnections() *LeastConnections {
	return &LeastConnections{}
}

func (l *LeastConnections) Name() string { return "least_connections" }

func (l *LeastConnections) SelectServer(candidates []pool.Entry) (pool.Entry, bool) {
	if len(candidates) == 0 {
		return pool.Entry{}, false
	}

	minConn := candidates[0].ActiveConnections
	for _, c := range candidates[1:] {
		if c.ActiveConnections < minConn {
			minConn = c.ActiveConnections
		}
	}

	var tied []pool.Entry
	for _, c := range candidates {
		if c.ActiveConnections == minConn {
			tied = append(tied, c)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.idx >= len(tied) {
		l.idx = 0
	}
	srv := tied[l.idx]
	l.idx++
	return srv, true
}
