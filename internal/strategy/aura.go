package strategy

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/drsoft-oss/loadbalancer/internal/pool"
)

// AURA reduces tail latency (p95-p99.9) under heavy-tailed load by
// sampling two random candidates per request (power of two choices) and
// picking whichever has the lower tail-risk score, a running estimate of
// queue depth, response-time volatility, and time since the server last
// drained its queue. The interference/age weights adapt every
// feedbackInterval (100) selections based on whether recent p99 latency is
// tracking above or below target.
//
//	tail-risk = EWMA(work_remaining) + beta*interference + gamma*head_age
type AURA struct {
	mu sync.Mutex

	sloThresholdMS           float64
	hedgeThresholdMultiplier float64

	beta  float64
	gamma float64

	ewmaAlpha float64

	servers map[string]*auraServerState

	recentLatenciesMS []float64
	targetP99MS       float64
	feedbackInterval  int
	requestCount      int

	hedgeCount    int
	totalRequests int

	rng *rand.Rand
}

type auraServerState struct {
	workQueueEWMA      float64
	interferenceSignal float64
	headRequestAge     float64
	lastUpdate         time.Time
	responseTimesMS    []float64 // capped at 100, oldest evicted
}

// NewAURA constructs an AURA strategy with the given SLO target in
// milliseconds. now seeds the random source used for power-of-two
// sampling.
func NewAURA(sloThresholdMS float64, now time.Time) *AURA {
	if sloThresholdMS <= 0 {
		sloThresholdMS = 100
	}
	return &AURA{
		sloThresholdMS:           sloThresholdMS,
		hedgeThresholdMultiplier: 1.5,
		beta:                     0.3,
		gamma:                    0.4,
		ewmaAlpha:                0.3,
		servers:                  make(map[string]*auraServerState),
		targetP99MS:              sloThresholdMS * 0.9,
		feedbackInterval:         100,
		rng:                      rand.New(rand.NewSource(now.UnixNano())),
	}
}

func (a *AURA) Name() string { return "aura" }

func (a *AURA) stateFor(key string, now time.Time) *auraServerState {
	s, ok := a.servers[key]
	if !ok {
		s = &auraServerState{lastUpdate: now}
		a.servers[key] = s
	}
	return s
}

func (a *AURA) SelectServer(candidates []pool.Entry) (pool.Entry, bool) {
	if len(candidates) == 0 {
		return pool.Entry{}, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s1 := candidates[a.rng.Intn(len(candidates))]
	s2 := candidates[a.rng.Intn(len(candidates))]
	for attempts := 0; s1.Key() == s2.Key() && attempts < 3; attempts++ {
		s2 = candidates[a.rng.Intn(len(candidates))]
	}

	now := time.Now()
	score1 := a.tailRisk(s1.Key())
	score2 := a.tailRisk(s2.Key())

	primary := s1
	if score2 < score1 {
		primary = s2
	}

	a.updateServerState(primary, now)

	a.totalRequests++
	a.requestCount++
	if a.requestCount >= a.feedbackInterval {
		a.adjustWeightsFeedback()
		a.requestCount = 0
	}

	return primary, true
}

func (a *AURA) tailRisk(key string) float64 {
	s := a.stateFor(key, time.Now())
	return s.workQueueEWMA + a.beta*s.interferenceSignal + a.gamma*s.headRequestAge
}

func (a *AURA) updateServerState(e pool.Entry, now time.Time) {
	s := a.stateFor(e.Key(), now)

	currentWork := float64(e.ActiveConnections) * 10
	s.workQueueEWMA = a.ewmaAlpha*currentWork + (1-a.ewmaAlpha)*s.workQueueEWMA

	if len(s.responseTimesMS) >= 5 {
		var sum float64
		for _, v := range s.responseTimesMS {
			sum += v
		}
		mean := sum / float64(len(s.responseTimesMS))
		var variance float64
		for _, v := range s.responseTimesMS {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(s.responseTimesMS))
		signal := variance / 1000.0
		if signal > 10.0 {
			signal = 10.0
		}
		s.interferenceSignal = signal
	} else {
		s.interferenceSignal = 0.0
	}

	elapsed := now.Sub(s.lastUpdate).Seconds()
	if e.ActiveConnections > 0 {
		age := s.headRequestAge + elapsed
		if age > 5.0 {
			age = 5.0
		}
		s.headRequestAge = age
	} else {
		s.headRequestAge = 0.0
	}
	s.lastUpdate = now
}

func (a *AURA) adjustWeightsFeedback() {
	if len(a.recentLatenciesMS) < 100 {
		return
	}
	sorted := append([]float64(nil), a.recentLatenciesMS...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	p99 := sorted[idx]

	if p99 > a.targetP99MS {
		a.beta = minF(a.beta*1.1, 1.0)
		a.gamma = minF(a.gamma*1.1, 1.0)
	} else {
		a.beta = maxF(a.beta*0.95, 0.1)
		a.gamma = maxF(a.gamma*0.95, 0.1)
	}
}

// RecordResponseTime feeds completed-request latency back into both the
// per-server interference estimate and the global p99 feedback loop.
func (a *AURA) RecordResponseTime(e pool.Entry, d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ms := float64(d.Microseconds()) / 1000.0

	if s, ok := a.servers[e.Key()]; ok {
		s.responseTimesMS = append(s.responseTimesMS, ms)
		if over := len(s.responseTimesMS) - 100; over > 0 {
			s.responseTimesMS = s.responseTimesMS[over:]
		}
	}

	a.recentLatenciesMS = append(a.recentLatenciesMS, ms)
	if over := len(a.recentLatenciesMS) - 1000; over > 0 {
		a.recentLatenciesMS = a.recentLatenciesMS[over:]
	}
}

// ShouldHedge reports whether a request in flight on e is predicted to
// finish beyond the hedge threshold and would benefit from a speculative
// retry against a second server. No dispatcher path calls this yet; it
// exists so the capability has a typed, testable home (see strategy.Hedger).
func (a *AURA) ShouldHedge(e pool.Entry) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.servers[e.Key()]
	if !ok {
		return false
	}
	threshold := a.sloThresholdMS * a.hedgeThresholdMultiplier
	predicted := s.workQueueEWMA
	hedge := predicted > threshold
	if hedge {
		a.hedgeCount++
	}
	return hedge
}

// AURAMetrics is a point-in-time view of AURA's algorithm-wide gauges,
// for the Administrative API's strategy-specific snapshot.
type AURAMetrics struct {
	Beta           float64
	Gamma          float64
	HedgeRatePct   float64
	TotalRequests  int
	CurrentP99MS   float64
	TargetP99MS    float64
	SLOThresholdMS float64
}

// Metrics reports AURA's current feedback-loop state: the adapted
// beta/gamma weights, the observed hedge rate, and the current vs
// target p99 latency.
func (a *AURA) Metrics() AURAMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	hedgeRate := 0.0
	if a.totalRequests > 0 {
		hedgeRate = float64(a.hedgeCount) / float64(a.totalRequests) * 100
	}

	var p99 float64
	if len(a.recentLatenciesMS) >= 10 {
		sorted := append([]float64(nil), a.recentLatenciesMS...)
		sort.Float64s(sorted)
		idx := int(float64(len(sorted)) * 0.99)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		p99 = sorted[idx]
	}

	return AURAMetrics{
		Beta:           a.beta,
		Gamma:          a.gamma,
		HedgeRatePct:   hedgeRate,
		TotalRequests:  a.totalRequests,
		CurrentP99MS:   p99,
		TargetP99MS:    a.targetP99MS,
		SLOThresholdMS: a.sloThresholdMS,
	}
}

// AlgorithmMetrics implements strategy.MetricsReporter.
func (a *AURA) AlgorithmMetrics() any { return a.Metrics() }

// AURAServerMetrics is a point-in-time view of one server's tail-risk
// inputs, for the Administrative API's per-server introspection.
type AURAServerMetrics struct {
	WorkQueueEWMA      float64
	InterferenceSignal float64
	HeadRequestAge     float64
	ServerP99MS        float64
}

// ServerMetrics reports the current tail-risk inputs of the server with
// the given key. The second return value is false if the server has never
// been sampled as a candidate.
func (a *AURA) ServerMetrics(key string) (AURAServerMetrics, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.servers[key]
	if !ok {
		return AURAServerMetrics{}, false
	}

	var p99 float64
	if len(s.responseTimesMS) >= 10 {
		sorted := append([]float64(nil), s.responseTimesMS...)
		sort.Float64s(sorted)
		idx := int(float64(len(sorted)) * 0.99)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		p99 = sorted[idx]
	}

	return AURAServerMetrics{
		WorkQueueEWMA:      s.workQueueEWMA,
		InterferenceSignal: s.interferenceSignal,
		HeadRequestAge:     s.headRequestAge,
		ServerP99MS:        p99,
	}, true
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
