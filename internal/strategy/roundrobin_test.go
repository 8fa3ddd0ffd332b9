package strategy

import (
	"testing"

	"github.com/drsoft-oss/loadbalancer/internal/pool"
)

func TestRoundRobin_CyclesInOrder(t *testing.T) {
	r := NewRoundRobin()
	candidates := []pool.Entry{
		{Host: "a", Port: 1},
		{Host: "b", Port: 2},
		{Host: "c", Port: 3},
	}
	var got []string
	for i := 0; i < 6; i++ {
		e, ok := r.SelectServer(candidates)
		if !ok {
			t.Fatal("expected a selection")
		}
		got = append(got, e.Host)
	}
	want := []string{"a", "b", "c", "a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("at %d: got %v, want %v", i, got, want)
		}
	}
}

func TestRoundRobin_EmptyCandidates(t *testing.T) {
	r := NewRoundRobin()
	if _, ok := r.SelectServer(nil); ok {
		t.Fatal("expected no selection from empty candidate set")
	}
}

func TestRoundRobin_ToleratesShrinkingSet(t *testing.T) {
	r := NewRoundRobin()
	three := []pool.Entry{{Host: "a"}, {Host: "b"}, {Host: "c"}}
	two := []pool.Entry{{Host: "a"}, {Host: "b"}}

	r.SelectServer(three)
	r.SelectServer(three)
	if _, ok := r.SelectServer(two); !ok {
		t.Fatal("expected a selection even after candidate set shrinks")
	}
}
