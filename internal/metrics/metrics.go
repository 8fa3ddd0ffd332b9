// Package metrics accumulates per-request statistics for the dispatcher:
// totals, success rate, throughput, per-server request counts, and a
// rolling window of recent requests for a status/monitoring surface.
package metrics

import (
	"sync"
	"time"
)

// maxRecentRequests bounds the in-memory request log.
const maxRecentRequests = 100

// Request describes the outcome of one proxied connection.
type Request struct {
	Timestamp time.Time
	Server    string // "" if no server was selected
	Client    string
	Success   bool
	Duration  time.Duration
}

// Snapshot is a point-in-time read of accumulated metrics, safe to
// serialize or print without holding any lock.
type Snapshot struct {
	TotalRequests      uint64
	SuccessfulRequests uint64
	FailedRequests     uint64
	ActiveConnections  uint64
	UptimeSeconds      float64
	SuccessRatePct     float64
	AvgResponseTimeMS  float64
	RequestsPerMinute   float64
	ServerRequestCounts map[string]uint64
	RecentRequests      []Request // newest last, capped at 10
}

// Recorder is the dispatcher's concurrency-safe counters. All mutation
// happens under a single mutex; the hot path (RequestStarted/RequestFinished) is
// called once per connection so lock contention here never reaches
// per-byte granularity like the proxy splice loop does.
type Recorder struct {
	mu sync.Mutex

	startTime time.Time

	totalRequests      uint64
	successfulRequests uint64
	failedRequests     uint64
	activeConnections  uint64

	serverRequestCounts map[string]uint64
	recentRequests      []Request
}

// New creates a Recorder with its uptime clock starting now.
func New() *Recorder {
	return &Recorder{
		startTime:           time.Now(),
		serverRequestCounts: make(map[string]uint64),
	}
}

// RequestStarted records the beginning of a new connection.
func (r *Recorder) RequestStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalRequests++
	r.activeConnections++
}

// RequestFinished records the outcome of a completed connection,
// appending it to the rolling request log and, whenever a server was
// selected, bumping that server's request count (successful or not).
func (r *Recorder) RequestFinished(req Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.activeConnections--
	if req.Success {
		r.successfulRequests++
	} else {
		r.failedRequests++
	}

	r.recentRequests = append(r.recentRequests, req)
	if over := len(r.recentRequests) - maxRecentRequests; over > 0 {
		r.recentRequests = r.recentRequests[over:]
	}

	if req.Server != "" {
		r.serverRequestCounts[req.Server]++
	}
}

// Snapshot computes derived statistics (success rate, throughput,
// average response time over the recent window) from the current
// counters.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	uptime := time.Since(r.startTime).Seconds()

	total := r.successfulRequests + r.failedRequests
	successRate := 0.0
	if total > 0 {
		successRate = float64(r.successfulRequests) / float64(total) * 100
	}

	var sumDur time.Duration
	var successCount int
	for _, req := range r.recentRequests {
		if req.Success {
			sumDur += req.Duration
			successCount++
		}
	}
	avgMS := 0.0
	if successCount > 0 {
		avgMS = float64(sumDur.Microseconds()) / 1000.0 / float64(successCount)
	}

	rpm := 0.0
	if uptime > 0 {
		minutes := uptime / 60
		if minutes < 1 {
			minutes = 1
		}
		rpm = float64(r.totalRequests) / minutes
	}

	counts := make(map[string]uint64, len(r.serverRequestCounts))
	for k, v := range r.serverRequestCounts {
		counts[k] = v
	}

	var last10 []Request
	if n := len(r.recentRequests); n > 0 {
		start := n - 10
		if start < 0 {
			start = 0
		}
		last10 = append(last10, r.recentRequests[start:]...)
	}

	return Snapshot{
		TotalRequests:       r.totalRequests,
		SuccessfulRequests:  r.successfulRequests,
		FailedRequests:      r.failedRequests,
		ActiveConnections:   r.activeConnections,
		UptimeSeconds:       uptime,
		SuccessRatePct:      successRate,
		AvgResponseTimeMS:   avgMS,
		RequestsPerMinute:   rpm,
		ServerRequestCounts: counts,
		RecentRequests:      last10,
	}
}
