package strategy

import (
	"testing"
	"time"

	"github.com/drsoft-oss/loadbalancer/internal/pool"
)

func TestResponseTime_RoundRobinsWithNoData(t *testing.T) {
	r := NewResponseTime()
	candidates := []pool.Entry{{Host: "a", Port: 1}, {Host: "b", Port: 2}}
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		e, ok := r.SelectServer(candidates)
		if !ok {
			t.Fatal("expected a selection")
		}
		seen[e.Host] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected round robin to visit both servers, got %v", seen)
	}
}

func TestResponseTime_PrefersLowerAverage(t *testing.T) {
	r := NewResponseTime()
	fast := pool.Entry{Host: "fast", Port: 1}
	slow := pool.Entry{Host: "slow", Port: 2}

	r.RecordResponseTime(fast, 10*time.Millisecond)
	r.RecordResponseTime(slow, 500*time.Millisecond)

	// Both servers have history, so no exploratory pick applies: the
	// lower average must win the majority of selections.
	fastCount := 0
	for i := 0; i < 50; i++ {
		e, ok := r.SelectServer([]pool.Entry{fast, slow})
		if !ok {
			t.Fatal("expected a selection")
		}
		if e.Host == "fast" {
			fastCount++
		}
	}
	if fastCount < 25 {
		t.Fatalf("expected fast server to dominate selections, got %d/50", fastCount)
	}
}

func TestResponseTime_CapsHistoryAt100(t *testing.T) {
	r := NewResponseTime()
	e := pool.Entry{Host: "a", Port: 1}
	for i := 0; i < 150; i++ {
		r.RecordResponseTime(e, time.Duration(i)*time.Millisecond)
	}
	r.mu.Lock()
	n := len(r.times[e.Key()])
	r.mu.Unlock()
	if n != 100 {
		t.Fatalf("expected history capped at 100, got %d", n)
	}
}

func TestResponseTime_Empty(t *testing.T) {
	r := NewResponseTime()
	if _, ok := r.SelectServer(nil); ok {
		t.Fatal("expected no selection from empty set")
	}
}
