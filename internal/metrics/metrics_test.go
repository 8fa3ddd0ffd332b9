package metrics

import (
	"testing"
	"time"
)

func TestRecorder_TracksTotalsAndSuccessRate(t *testing.T) {
	r := New()
	r.RequestStarted()
	r.RequestFinished(Request{Server: "a:1", Success: true, Duration: 10 * time.Millisecond})
	r.RequestStarted()
	r.RequestFinished(Request{Server: "a:1", Success: false})

	s := r.Snapshot()
	if s.TotalRequests != 2 {
		t.Errorf("expected total=2, got %d", s.TotalRequests)
	}
	if s.SuccessfulRequests != 1 || s.FailedRequests != 1 {
		t.Errorf("expected 1 success 1 failure, got %+v", s)
	}
	if s.SuccessRatePct != 50 {
		t.Errorf("expected 50%% success rate, got %f", s.SuccessRatePct)
	}
	if s.ActiveConnections != 0 {
		t.Errorf("expected 0 active connections after both finished, got %d", s.ActiveConnections)
	}
}

func TestRecorder_ServerRequestCounts(t *testing.T) {
	r := New()
	r.RequestStarted()
	r.RequestFinished(Request{Server: "a:1", Success: true})
	r.RequestStarted()
	r.RequestFinished(Request{Server: "a:1", Success: true})
	r.RequestStarted()
	r.RequestFinished(Request{Server: "b:2", Success: true})

	s := r.Snapshot()
	if s.ServerRequestCounts["a:1"] != 2 || s.ServerRequestCounts["b:2"] != 1 {
		t.Errorf("unexpected server counts: %+v", s.ServerRequestCounts)
	}
}

func TestRecorder_AverageResponseTimeOnlyCountsSuccesses(t *testing.T) {
	r := New()
	r.RequestStarted()
	r.RequestFinished(Request{Server: "a:1", Success: true, Duration: 100 * time.Millisecond})
	r.RequestStarted()
	r.RequestFinished(Request{Server: "a:1", Success: false, Duration: 5 * time.Second})

	s := r.Snapshot()
	if s.AvgResponseTimeMS < 99 || s.AvgResponseTimeMS > 101 {
		t.Errorf("expected avg near 100ms (failures excluded), got %f", s.AvgResponseTimeMS)
	}
}

func TestRecorder_RecentRequestsCapsAtTenInSnapshot(t *testing.T) {
	r := New()
	for i := 0; i < 15; i++ {
		r.RequestStarted()
		r.RequestFinished(Request{Server: "a:1", Success: true})
	}
	s := r.Snapshot()
	if len(s.RecentRequests) != 10 {
		t.Errorf("expected snapshot to cap recent requests at 10, got %d", len(s.RecentRequests))
	}
}

func TestRecorder_InternalLogCapsAt100(t *testing.T) {
	r := New()
	for i := 0; i < 150; i++ {
		r.RequestStarted()
		r.RequestFinished(Request{Server: "a:1", Success: true})
	}
	r.mu.Lock()
	n := len(r.recentRequests)
	r.mu.Unlock()
	if n != maxRecentRequests {
		t.Errorf("expected internal log capped at %d, got %d", maxRecentRequests, n)
	}
}

func TestRecorder_EmptySnapshotHasZeroRates(t *testing.T) {
	r := New()
	s := r.Snapshot()
	if s.SuccessRatePct != 0 || s.AvgResponseTimeMS != 0 {
		t.Errorf("expected zeroed rates with no requests, got %+v", s)
	}
}
