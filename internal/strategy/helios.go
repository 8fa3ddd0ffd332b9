package strategy

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/drsoft-oss/loadbalancer/internal/pool"
)

// heliosRecentKeyLimit bounds how many recently-seen keys each server
// remembers for cache-warmth checks.
const heliosRecentKeyLimit = 1000

// HELIOS is a bounded-load, cache-aware rendezvous-hashing (HRW)
// strategy: it ranks servers per request key by a stable hash so the
// same key tends to land on the same server (cache affinity), while
// skipping any server whose current load exceeds capacityFactor times
// the pool's average load, and easing newly-scaled-in servers in via a
// warm-up quota rather than flooding them immediately.
type HELIOS struct {
	mu sync.Mutex

	capacityFactor    float64
	warmupDuration    time.Duration
	warmupQuotaFactor float64

	servers       map[string]*heliosServerState
	knownServers  map[string]struct{}
	totalRequests int

	cacheHits            int
	boundedLoadRedirects int
	warmupRedirects      int
}

type heliosServerState struct {
	totalRequests   int
	recentKeys      map[string]struct{}
	recentKeyOrder  []string // insertion order, for bounded eviction
	warmupStart     time.Time
	isNew           bool
	warmupRequests  int
}

// NewHELIOS constructs a HELIOS strategy with the given bounded-load
// capacity factor (max load = capacityFactor x average load) and
// warm-up window for newly discovered servers.
func NewHELIOS(capacityFactor float64, warmupDuration time.Duration) *HELIOS {
	if capacityFactor <= 0 {
		capacityFactor = 1.25
	}
	if warmupDuration <= 0 {
		warmupDuration = 60 * time.Second
	}
	return &HELIOS{
		capacityFactor:    capacityFactor,
		warmupDuration:    warmupDuration,
		warmupQuotaFactor: 0.3,
		servers:           make(map[string]*heliosServerState),
		knownServers:      make(map[string]struct{}),
	}
}

func (h *HELIOS) Name() string { return "helios" }

func (h *HELIOS) SelectServer(candidates []pool.Entry) (pool.Entry, bool) {
	if len(candidates) == 0 {
		return pool.Entry{}, false
	}
	h.mu.Lock()
	pseudoKey := fmt.Sprintf("req_%d_%d", h.totalRequests, time.Now().UnixNano()%10000)
	h.mu.Unlock()
	return h.selectWithKey(candidates, pseudoKey)
}

// SelectServerWithKey performs cache-affine selection using the caller's
// routing key (e.g. a client identifier) instead of a synthetic one.
func (h *HELIOS) SelectServerWithKey(candidates []pool.Entry, key string) (pool.Entry, bool) {
	return h.selectWithKey(candidates, key)
}

func (h *HELIOS) selectWithKey(candidates []pool.Entry, key string) (pool.Entry, bool) {
	if len(candidates) == 0 {
		return pool.Entry{}, false
	}
	if len(candidates) == 1 {
		h.mu.Lock()
		h.detectScalingEvents(candidates)
		h.updateServerState(candidates[0].Key(), key)
		h.totalRequests++
		h.mu.Unlock()
		return candidates[0], true
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.detectScalingEvents(candidates)

	ranked := hrwRank(key, candidates)
	avgLoad := averageLoad(candidates)

	var chosen *pool.Entry
	for i := range ranked {
		c := ranked[i]
		if h.isOverloaded(c, avgLoad) {
			continue
		}
		if h.inWarmup(c.Key()) && h.warmupQuotaExceeded(c.Key(), avgLoad) {
			h.warmupRedirects++
			continue
		}
		if h.keyIsRecentOn(key, c.Key()) {
			h.cacheHits++
			chosen = &ranked[i]
			break
		}
		chosen = &ranked[i]
		break
	}

	if chosen == nil {
		chosen = &ranked[0]
		h.boundedLoadRedirects++
		if h.keyIsRecentOn(key, chosen.Key()) {
			h.cacheHits++
		}
	}

	h.updateServerState(chosen.Key(), key)
	h.totalRequests++

	return *chosen, true
}

func hrwRank(key string, candidates []pool.Entry) []pool.Entry {
	type weighted struct {
		entry  pool.Entry
		weight [sha256.Size]byte
	}
	weights := make([]weighted, len(candidates))
	for i, c := range candidates {
		combined := key + ":" + c.Key()
		weights[i] = weighted{entry: c, weight: sha256.Sum256([]byte(combined))}
	}
	sort.Slice(weights, func(i, j int) bool {
		return bytes.Compare(weights[i].weight[:], weights[j].weight[:]) > 0
	})
	ranked := make([]pool.Entry, len(weights))
	for i, w := range weights {
		ranked[i] = w.entry
	}
	return ranked
}

func averageLoad(candidates []pool.Entry) float64 {
	if len(candidates) == 0 {
		return 0
	}
	var total uint32
	for _, c := range candidates {
		total += c.ActiveConnections
	}
	return float64(total) / float64(len(candidates))
}

func (h *HELIOS) isOverloaded(e pool.Entry, avgLoad float64) bool {
	return float64(e.ActiveConnections) > h.capacityFactor*avgLoad
}

func (h *HELIOS) stateFor(key string) *heliosServerState {
	s, ok := h.servers[key]
	if !ok {
		s = &heliosServerState{recentKeys: make(map[string]struct{})}
		h.servers[key] = s
	}
	return s
}

func (h *HELIOS) inWarmup(key string) bool {
	s := h.stateFor(key)
	if !s.isNew || s.warmupStart.IsZero() {
		return false
	}
	return time.Since(s.warmupStart) < h.warmupDuration
}

func (h *HELIOS) warmupQuotaExceeded(key string, avgLoad float64) bool {
	s := h.stateFor(key)
	quota := h.warmupQuotaFactor * avgLoad * h.warmupDuration.Seconds()
	return float64(s.warmupRequests) >= quota
}

func (h *HELIOS) keyIsRecentOn(key, serverKey string) bool {
	s := h.stateFor(serverKey)
	_, ok := s.recentKeys[key]
	return ok
}

// updateServerState records the request against the server's running
// totals and cache-warmth set. recentKeys is kept as an explicit
// insertion-ordered map + slice so eviction is a clean FIFO trim rather
// than the unordered half-clear a plain set would require.
func (h *HELIOS) updateServerState(serverKey, key string) {
	s := h.stateFor(serverKey)
	s.totalRequests++

	if _, exists := s.recentKeys[key]; !exists {
		s.recentKeys[key] = struct{}{}
		s.recentKeyOrder = append(s.recentKeyOrder, key)
		if over := len(s.recentKeyOrder) - heliosRecentKeyLimit; over > 0 {
			evicted := s.recentKeyOrder[:over]
			for _, k := range evicted {
				delete(s.recentKeys, k)
			}
			s.recentKeyOrder = s.recentKeyOrder[over:]
		}
	}

	if s.isNew {
		s.warmupRequests++
	}
}

func (h *HELIOS) detectScalingEvents(candidates []pool.Entry) {
	current := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		current[c.Key()] = struct{}{}
	}

	now := time.Now()
	for key := range current {
		if _, known := h.knownServers[key]; !known {
			s := h.stateFor(key)
			s.isNew = true
			s.warmupStart = now
			s.warmupRequests = 0
		}
	}
	for key := range h.knownServers {
		if _, stillPresent := current[key]; !stillPresent {
			delete(h.servers, key)
		}
	}
	h.knownServers = current

	for key := range current {
		s := h.stateFor(key)
		if s.isNew && !s.warmupStart.IsZero() && time.Since(s.warmupStart) >= h.warmupDuration {
			s.isNew = false
			s.warmupStart = time.Time{}
		}
	}
}

// HELIOSMetrics is a point-in-time view of HELIOS's algorithm-wide
// gauges, for the Administrative API's strategy-specific snapshot.
type HELIOSMetrics struct {
	CapacityFactor        float64
	WarmupDurationSeconds float64
	TotalRequests         int
	CacheHitRatePct       float64
	BoundedLoadRedirects  int
	RedirectRatePct       float64
	WarmupRedirects       int
	WarmupRedirectRatePct float64
	ServersInWarmup       int
}

// Metrics reports HELIOS's current cache-affinity and bounded-load
// gauges: hit rate, redirect rates, and how many servers are presently
// warming up.
func (h *HELIOS) Metrics() HELIOSMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()

	denom := h.totalRequests
	if denom < 1 {
		denom = 1
	}
	cacheHitRate := float64(h.cacheHits) / float64(denom) * 100
	redirectRate := float64(h.boundedLoadRedirects) / float64(denom) * 100
	warmupRedirectRate := float64(h.warmupRedirects) / float64(denom) * 100

	warmupServers := 0
	for _, s := range h.servers {
		if s.isNew && !s.warmupStart.IsZero() {
			warmupServers++
		}
	}

	return HELIOSMetrics{
		CapacityFactor:        h.capacityFactor,
		WarmupDurationSeconds: h.warmupDuration.Seconds(),
		TotalRequests:         h.totalRequests,
		CacheHitRatePct:       cacheHitRate,
		BoundedLoadRedirects:  h.boundedLoadRedirects,
		RedirectRatePct:       redirectRate,
		WarmupRedirects:       h.warmupRedirects,
		WarmupRedirectRatePct: warmupRedirectRate,
		ServersInWarmup:       warmupServers,
	}
}

// AlgorithmMetrics implements strategy.MetricsReporter.
func (h *HELIOS) AlgorithmMetrics() any { return h.Metrics() }

// HELIOSServerMetrics is a point-in-time view of one server's cache
// affinity and warm-up state, for the Administrative API's per-server
// introspection.
type HELIOSServerMetrics struct {
	TotalRequests     int
	CachedKeysCount   int
	IsWarmingUp       bool
	WarmupProgressPct float64
	WarmupRequests    int
}

// ServerMetrics reports serverKey's current cache-affinity and warm-up
// state. The second return value is false if the server has never
// appeared in a candidate set.
func (h *HELIOS) ServerMetrics(serverKey string) (HELIOSServerMetrics, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.servers[serverKey]
	if !ok {
		return HELIOSServerMetrics{}, false
	}

	var progress float64
	if s.isNew && !s.warmupStart.IsZero() {
		elapsed := time.Since(s.warmupStart).Seconds()
		progress = elapsed / h.warmupDuration.Seconds() * 100
		if progress > 100 {
			progress = 100
		}
	}

	return HELIOSServerMetrics{
		TotalRequests:     s.totalRequests,
		CachedKeysCount:   len(s.recentKeys),
		IsWarmingUp:       s.isNew,
		WarmupProgressPct: progress,
		WarmupRequests:    s.warmupRequests,
	}, true
}

// RecordResponseTime is a no-op: HELIOS routes purely on cache affinity
// and bounded load, not response time. Implemented so the strategy can
// still be wired through dispatchers that feed every strategy feedback
// uniformly via strategy.Feedbacker.
func (h *HELIOS) RecordResponseTime(pool.Entry, time.Duration) {}
