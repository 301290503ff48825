package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"concord/internal/population"
	"concord/internal/resultstore"
)

func poolTargets(n int) []population.Target {
	targets := make([]population.Target, n)
	for i := range targets {
		targets[i] = population.Target{Origin: fmt.Sprintf("t-%02d.example", i), Rank: i + 1}
	}
	return targets
}

func okTask(_ context.Context, t population.Target) resultstore.Record {
	rec := resultstore.NewRecord(t.Origin, t.Rank)
	rec.Status = resultstore.StatusOK
	return rec
}

func TestPool_CompletenessAndBoundedness(t *testing.T) {
	targets := poolTargets(10)
	pool := &Pool{Concurrency: 3}

	var inFlight, peak atomic.Int64
	task := func(ctx context.Context, tgt population.Target) resultstore.Record {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return okTask(ctx, tgt)
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	done := func(rec resultstore.Record) error {
		mu.Lock()
		seen[rec.Origin]++
		mu.Unlock()
		return nil
	}

	if err := pool.Run(context.Background(), targets, task, done); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(seen) != 10 {
		t.Errorf("completed %d distinct targets, want 10", len(seen))
	}
	for origin, n := range seen {
		if n != 1 {
			t.Errorf("target %s completed %d times", origin, n)
		}
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency %d exceeds limit 3", p)
	}
}

func TestPool_ClaimOrderFollowsInput(t *testing.T) {
	targets := poolTargets(8)
	pool := &Pool{Concurrency: 1}

	var order []string
	done := func(rec resultstore.Record) error {
		order = append(order, rec.Origin)
		return nil
	}
	if err := pool.Run(context.Background(), targets, okTask, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, origin := range order {
		if origin != targets[i].Origin {
			t.Fatalf("position %d: got %s, want %s", i, origin, targets[i].Origin)
		}
	}
}

func TestPool_EmptyInput(t *testing.T) {
	pool := &Pool{Concurrency: 4}
	called := false
	err := pool.Run(context.Background(), nil, okTask, func(resultstore.Record) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if called {
		t.Error("done callback fired for empty input")
	}
}

func TestPool_StoreFailureAborts(t *testing.T) {
	targets := poolTargets(50)
	pool := &Pool{Concurrency: 2}

	storeErr := errors.New("disk full")
	var completed atomic.Int64
	done := func(resultstore.Record) error {
		if completed.Add(1) >= 3 {
			return storeErr
		}
		return nil
	}

	err := pool.Run(context.Background(), targets, okTask, done)
	if !errors.Is(err, storeErr) {
		t.Fatalf("Run error = %v, want %v", err, storeErr)
	}
	if n := completed.Load(); n >= 50 {
		t.Errorf("run should have aborted early, completed %d", n)
	}
}

func TestPool_WorkersCappedAtTargets(t *testing.T) {
	// More workers than targets must not duplicate or skip work.
	targets := poolTargets(2)
	pool := &Pool{Concurrency: 16}

	var mu sync.Mutex
	var count int
	err := pool.Run(context.Background(), targets, okTask, func(resultstore.Record) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 2 {
		t.Errorf("completed %d, want 2", count)
	}
}
