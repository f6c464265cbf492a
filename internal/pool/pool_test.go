package pool

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_BoundedConcurrency(t *testing.T) {
	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}

	var inFlight, peak int32
	Run(items, 2, func(i, item int) int {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return item
	})

	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("Expected at most 2 in flight, observed %d", p)
	}
}

func TestRun_ResultsPreserveOrder(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	results := Run(items, 3, func(i, item int) int {
		// Finish in roughly reverse order to exercise ordering.
		time.Sleep(time.Duration(10-item) * time.Millisecond)
		return item * 10
	})

	if len(results) != len(items) {
		t.Fatalf("Expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if r != i*10 {
			t.Errorf("Result %d: expected %d, got %d", i, i*10, r)
		}
	}
}

func TestRun_Empty(t *testing.T) {
	results := Run(nil, 4, func(i, item int) int { return item })
	if len(results) != 0 {
		t.Errorf("Expected empty results, got %d", len(results))
	}
}

func TestRun_FewerItemsThanWorkers(t *testing.T) {
	results := Run([]string{"a", "b"}, 8, func(i int, item string) string {
		return item + "!"
	})

	if len(results) != 2 || results[0] != "a!" || results[1] != "b!" {
		t.Errorf("Unexpected results: %v", results)
	}
}

func TestRun_ZeroLimit(t *testing.T) {
	results := Run([]int{1, 2, 3}, 0, func(i, item int) int { return item })
	for i, r := range results {
		if r != i+1 {
			t.Errorf("Result %d: expected %d, got %d", i, i+1, r)
		}
	}
}
