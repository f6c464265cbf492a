package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestAcquire_FirstCallImmediate(t *testing.T) {
	l := New(100 * time.Millisecond)

	start := time.Now()
	l.Acquire()
	elapsed := time.Since(start)

	if elapsed > 50*time.Millisecond {
		t.Errorf("First acquire should be immediate, took %v", elapsed)
	}
}

func TestAcquire_SequentialSpacing(t *testing.T) {
	interval := 30 * time.Millisecond
	l := New(interval)

	const n = 4
	start := time.Now()
	for i := 0; i < n; i++ {
		l.Acquire()
	}
	elapsed := time.Since(start)

	min := time.Duration(n-1) * interval
	if elapsed < min {
		t.Errorf("Expected %d acquires to take at least %v, took %v", n, min, elapsed)
	}
}

func TestAcquire_ConcurrentCallers(t *testing.T) {
	interval := 25 * time.Millisecond
	l := New(interval)

	const n = 5
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Acquire()
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// N grants from arbitrary callers must span at least (N-1) intervals.
	min := time.Duration(n-1) * interval
	if elapsed < min {
		t.Errorf("Expected %d concurrent acquires to take at least %v, took %v", n, min, elapsed)
	}
}

func TestAcquire_NilLimiterUnthrottled(t *testing.T) {
	var l *Limiter

	start := time.Now()
	for i := 0; i < 100; i++ {
		l.Acquire()
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Nil limiter should not block, took %v", elapsed)
	}
}

func TestNew_NonPositiveInterval(t *testing.T) {
	if l := New(0); l != nil {
		t.Error("Expected nil limiter for zero interval")
	}
	if l := New(-time.Second); l != nil {
		t.Error("Expected nil limiter for negative interval")
	}
}
