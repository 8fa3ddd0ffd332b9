// Package strategy implements the pluggable server-selection algorithms a
// dispatcher chooses between. Strategies operate on pool.Entry snapshots,
// never on the pool itself, so they cannot race with concurrent mutation.
package strategy

import (
	"time"

	"github.com/drsoft-oss/loadbalancer/internal/pool"
)

// Selector picks one server from a set of healthy candidates. Every
// strategy implements this.
type Selector interface {
	Name() string
	SelectServer(candidates []pool.Entry) (pool.Entry, bool)
}

// KeyedSelector is an optional capability: a strategy that can make a
// cache-affine choice when the caller supplies a routing key (e.g. a
// client identifier or request path). Dispatchers type-assert for this
// rather than branching on concrete strategy type.
type KeyedSelector interface {
	SelectServerWithKey(candidates []pool.Entry, key string) (pool.Entry, bool)
}

// Feedbacker is an optional capability: a strategy that adapts its future
// choices based on observed response times. Dispatchers call RecordResponseTime
// after every successful request when the active strategy implements this.
type Feedbacker interface {
	RecordResponseTime(e pool.Entry, d time.Duration)
}

// MetricsReporter is an optional capability: a strategy that exposes
// algorithm-specific gauges beyond the aggregate request counters every
// strategy is indifferent to (AURA's beta/gamma/hedge rate/p99; HELIOS's
// cache-hit/redirect/warm-up rates). The Administrative API surfaces
// this alongside the aggregate metrics snapshot when present.
type MetricsReporter interface {
	AlgorithmMetrics() any
}

// Hedger is an optional capability for strategies that can advise the
// dispatcher whether a slow in-flight request is a good candidate for a
// speculative retry against a second server. No strategy currently
// exercises this from the dispatcher hot path; it exists so AURA's
// internal tail-risk signal has a defined, typed outlet instead of being
// dead code.
type Hedger interface {
	ShouldHedge(e pool.Entry) bool
}
