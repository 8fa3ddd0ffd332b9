package strategy

import (
	"testing"
	"time"

	"github.com/drsoft-oss/loadbalancer/internal/pool"
)

func TestAURA_SingleCandidateShortCircuits(t *testing.T) {
	a := NewAURA(100, time.Now())
	only := pool.Entry{Host: "a", Port: 1}
	e, ok := a.SelectServer([]pool.Entry{only})
	if !ok || e.Host != "a" {
		t.Fatalf("expected the sole candidate, got %+v", e)
	}
}

func TestAURA_Empty(t *testing.T) {
	a := NewAURA(100, time.Now())
	if _, ok := a.SelectServer(nil); ok {
		t.Fatal("expected no selection from empty set")
	}
}

func TestAURA_PrefersLowerLoadCandidate(t *testing.T) {
	a := NewAURA(100, time.Now())
	busy := pool.Entry{Host: "busy", Port: 1, ActiveConnections: 50}
	idle := pool.Entry{Host: "idle", Port: 2, ActiveConnections: 0}

	// Warm up the EWMA for both so tail-risk reflects load.
	for i := 0; i < 10; i++ {
		a.updateServerState(busy, time.Now())
		a.updateServerState(idle, time.Now())
	}

	idleCount := 0
	for i := 0; i < 50; i++ {
		e, ok := a.SelectServer([]pool.Entry{busy, idle})
		if !ok {
			t.Fatal("expected a selection")
		}
		if e.Host == "idle" {
			idleCount++
		}
	}
	if idleCount < 25 {
		t.Fatalf("expected idle server to be favored by tail-risk scoring, got %d/50", idleCount)
	}
}

func TestAURA_RecordResponseTimeFeedsPercentile(t *testing.T) {
	a := NewAURA(100, time.Now())
	e := pool.Entry{Host: "a", Port: 1}
	a.SelectServer([]pool.Entry{e, {Host: "b", Port: 2}})
	for i := 0; i < 150; i++ {
		a.RecordResponseTime(e, time.Duration(i)*time.Millisecond)
	}
	a.mu.Lock()
	n := len(a.recentLatenciesMS)
	a.mu.Unlock()
	if n != 150 {
		t.Fatalf("expected all samples retained below the 1000 cap, got %d", n)
	}
}

func TestAURA_ShouldHedge_UnknownServerIsFalse(t *testing.T) {
	a := NewAURA(100, time.Now())
	if a.ShouldHedge(pool.Entry{Host: "ghost", Port: 1}) {
		t.Fatal("expected no hedge recommendation for a server with no recorded state")
	}
}

func TestAURA_Metrics_ReflectsConfiguredThresholds(t *testing.T) {
	a := NewAURA(200, time.Now())
	m := a.Metrics()
	if m.SLOThresholdMS != 200 {
		t.Fatalf("expected SLO threshold 200, got %v", m.SLOThresholdMS)
	}
	if m.TargetP99MS != 180 {
		t.Fatalf("expected target p99 90%% of SLO (180), got %v", m.TargetP99MS)
	}
	if m.Beta != 0.3 || m.Gamma != 0.4 {
		t.Fatalf("expected initial beta=0.3 gamma=0.4, got beta=%v gamma=%v", m.Beta, m.Gamma)
	}
}

func TestAURA_Metrics_HedgeRateReflectsShouldHedgeCalls(t *testing.T) {
	a := NewAURA(10, time.Now())
	e := pool.Entry{Host: "a", Port: 1, ActiveConnections: 100}
	for i := 0; i < 20; i++ {
		a.updateServerState(e, time.Now())
	}
	a.totalRequests = 10
	for i := 0; i < 5; i++ {
		a.ShouldHedge(e)
	}
	m := a.Metrics()
	if m.HedgeRatePct <= 0 {
		t.Fatalf("expected a positive hedge rate, got %v", m.HedgeRatePct)
	}
}

func TestAURA_AlgorithmMetrics_ReturnsAURAMetrics(t *testing.T) {
	a := NewAURA(100, time.Now())
	if _, ok := a.AlgorithmMetrics().(AURAMetrics); !ok {
		t.Fatalf("expected AlgorithmMetrics to return AURAMetrics, got %T", a.AlgorithmMetrics())
	}
}

func TestAURA_ServerMetrics_UnknownServerIsAbsent(t *testing.T) {
	a := NewAURA(100, time.Now())
	if _, ok := a.ServerMetrics("ghost:1"); ok {
		t.Fatal("expected no metrics for a server that was never selected")
	}
}

func TestAURA_ServerMetrics_ReflectsRecordedState(t *testing.T) {
	a := NewAURA(100, time.Now())
	e := pool.Entry{Host: "a", Port: 1, ActiveConnections: 3}
	a.updateServerState(e, time.Now())

	m, ok := a.ServerMetrics(e.Key())
	if !ok {
		t.Fatal("expected metrics after the server has been updated")
	}
	if m.WorkQueueEWMA <= 0 {
		t.Fatalf("expected a positive work queue EWMA, got %v", m.WorkQueueEWMA)
	}
}
