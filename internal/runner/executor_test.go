package runner

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"concord/internal/analyzer"
	"concord/internal/population"
	"concord/internal/resultstore"
)

// fakeEngine and fakeTool give the tests full control over latency and
// failure without a browser.
type fakeEngine struct {
	acquireErr   error
	blockAcquire bool
	blockRelease bool // Release hangs until its ctx expires

	acquired atomic.Int64
	released atomic.Int64
}

func (e *fakeEngine) Acquire(ctx context.Context, origin string) (analyzer.Page, error) {
	if e.acquireErr != nil {
		return nil, e.acquireErr
	}
	if e.blockAcquire {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	e.acquired.Add(1)
	return &fakePage{origin: origin, engine: e}, nil
}

func (e *fakeEngine) Close() error { return nil }

type fakePage struct {
	origin string
	engine *fakeEngine
}

func (p *fakePage) Origin() string { return p.origin }

func (p *fakePage) Release(ctx context.Context) error {
	if p.engine.blockRelease {
		<-ctx.Done()
		p.engine.released.Add(1)
		return ctx.Err()
	}
	p.engine.released.Add(1)
	return nil
}

type fakeTool struct {
	name       string
	categories []string
	err        error
	block      bool          // wait for ctx cancellation
	sleep      time.Duration // ignore ctx entirely
}

func (t *fakeTool) Name() string { return t.name }

func (t *fakeTool) Analyze(ctx context.Context, _ analyzer.Page) (analyzer.Finding, error) {
	if t.block {
		<-ctx.Done()
		return analyzer.Finding{}, ctx.Err()
	}
	if t.sleep > 0 {
		time.Sleep(t.sleep)
	}
	if t.err != nil {
		return analyzer.Finding{}, t.err
	}
	return analyzer.Finding{
		TimeMs:       1,
		Categories:   t.categories,
		RuleIDs:      []string{t.name + "/rule"},
		FindingCount: len(t.categories),
	}, nil
}

var testTarget = population.Target{Origin: "target.example", Rank: 7}

func newExecutor(engine analyzer.Engine, tools ...analyzer.Tool) *Executor {
	return &Executor{
		Engine:       engine,
		Tools:        tools,
		Timeout:      100 * time.Millisecond,
		ReleaseGrace: 50 * time.Millisecond,
	}
}

func TestExecutor_Success(t *testing.T) {
	engine := &fakeEngine{}
	exec := newExecutor(engine,
		&fakeTool{name: "alpha", categories: []string{"1.1.1", "1.4.3"}},
		&fakeTool{name: "beta", categories: []string{"1.1.1"}},
	)

	rec := exec.Execute(context.Background(), testTarget)

	if rec.Status != resultstore.StatusOK {
		t.Fatalf("status = %s (%s), want ok", rec.Status, rec.Error)
	}
	if rec.Origin != testTarget.Origin || rec.Rank != testTarget.Rank {
		t.Errorf("record identity %s/%d", rec.Origin, rec.Rank)
	}
	if len(rec.Tools) != 2 {
		t.Fatalf("recorded %d tools, want 2", len(rec.Tools))
	}
	alpha := rec.Tools["alpha"]
	if alpha.Status != resultstore.StatusOK || alpha.TimeMs <= 0 {
		t.Errorf("alpha record %+v", alpha)
	}
	if len(rec.CategoryDetail) != 2 {
		t.Fatalf("category detail has %d entries, want 2", len(rec.CategoryDetail))
	}
	d := rec.CategoryDetail[0]
	if d.Category != "1.1.1" {
		t.Errorf("detail not sorted: first category %s", d.Category)
	}
	if !d.PerTool["alpha"].Found || !d.PerTool["beta"].Found {
		t.Errorf("1.1.1 perTool %+v", d.PerTool)
	}
	if engine.released.Load() != 1 {
		t.Errorf("released %d pages, want 1", engine.released.Load())
	}
}

func TestExecutor_ToolIsolation(t *testing.T) {
	engine := &fakeEngine{}
	exec := newExecutor(engine,
		&fakeTool{name: "broken", err: errors.New("injection blew up")},
		&fakeTool{name: "fine", categories: []string{"2.4.4"}},
	)

	rec := exec.Execute(context.Background(), testTarget)

	if rec.Status != resultstore.StatusOK {
		t.Fatalf("one failing tool must not fail the task: status=%s error=%s", rec.Status, rec.Error)
	}
	broken := rec.Tools["broken"]
	if broken.Status != resultstore.StatusError {
		t.Errorf("broken tool status = %s", broken.Status)
	}
	if broken.TimeMs != resultstore.FailedTimeMs {
		t.Errorf("broken tool timeMs = %d, want sentinel %d", broken.TimeMs, resultstore.FailedTimeMs)
	}
	fine := rec.Tools["fine"]
	if fine.Status != resultstore.StatusOK || len(fine.CategoriesFound) != 1 {
		t.Errorf("healthy tool contaminated: %+v", fine)
	}
	if engine.released.Load() != 1 {
		t.Errorf("released %d pages, want 1", engine.released.Load())
	}
}

func TestExecutor_SoftTimeout(t *testing.T) {
	engine := &fakeEngine{}
	exec := newExecutor(engine, &fakeTool{name: "stuck", block: true})

	start := time.Now()
	rec := exec.Execute(context.Background(), testTarget)
	elapsed := time.Since(start)

	if rec.Status != resultstore.StatusError || rec.Error != MsgTimeout {
		t.Fatalf("record = %s/%q, want error/%q", rec.Status, rec.Error, MsgTimeout)
	}
	// Recorded no later than the soft bound, well before the hard one.
	if elapsed >= exec.hardDeadline() {
		t.Errorf("soft timeout took %v, hard deadline is %v", elapsed, exec.hardDeadline())
	}
	if engine.released.Load() != 1 {
		t.Errorf("page not released after soft timeout: released=%d", engine.released.Load())
	}
}

func TestExecutor_HardKill(t *testing.T) {
	engine := &fakeEngine{}
	// The tool ignores cancellation entirely, so the soft path cannot
	// finish; only the hard deadline can end the task.
	exec := newExecutor(engine, &fakeTool{name: "zombie", sleep: 2 * time.Second})

	start := time.Now()
	rec := exec.Execute(context.Background(), testTarget)
	elapsed := time.Since(start)

	if rec.Status != resultstore.StatusError || rec.Error != MsgHardTimeout {
		t.Fatalf("record = %s/%q, want error/%q", rec.Status, rec.Error, MsgHardTimeout)
	}
	if elapsed >= time.Second {
		t.Errorf("hard kill took %v, deadline is %v", elapsed, exec.hardDeadline())
	}
}

func TestExecutor_ReleaseBoundedByHardDeadline(t *testing.T) {
	engine := &fakeEngine{blockRelease: true}
	// Default grace (5s) far exceeds the hard deadline; the clamp, not
	// the grace, must bound how long the teardown can hold the page.
	exec := &Executor{
		Engine:  engine,
		Tools:   []analyzer.Tool{&fakeTool{name: "stuck", block: true}},
		Timeout: 200 * time.Millisecond,
	}

	start := time.Now()
	rec := exec.Execute(context.Background(), testTarget)
	if rec.Status != resultstore.StatusError {
		t.Fatalf("status = %s, want error", rec.Status)
	}

	deadline := time.After(2 * time.Second)
	for engine.released.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("page still held %v after task start", time.Since(start))
		case <-time.After(5 * time.Millisecond):
		}
	}
	if held := time.Since(start); held >= exec.hardDeadline()+200*time.Millisecond {
		t.Errorf("page held %v, hard deadline is %v", held, exec.hardDeadline())
	}
}

func TestExecutor_AcquireFailure(t *testing.T) {
	engine := &fakeEngine{acquireErr: errors.New("dns lookup failed")}
	exec := newExecutor(engine, &fakeTool{name: "alpha"})

	rec := exec.Execute(context.Background(), testTarget)
	if rec.Status != resultstore.StatusError {
		t.Fatalf("status = %s, want error", rec.Status)
	}
	if !strings.HasPrefix(rec.Error, "navigate:") {
		t.Errorf("error = %q, want navigate: prefix", rec.Error)
	}
}

func TestExecutor_AcquireTimeout(t *testing.T) {
	engine := &fakeEngine{blockAcquire: true}
	exec := newExecutor(engine, &fakeTool{name: "alpha"})

	rec := exec.Execute(context.Background(), testTarget)
	if rec.Status != resultstore.StatusError || rec.Error != MsgTimeout {
		t.Errorf("record = %s/%q, want error/%q", rec.Status, rec.Error, MsgTimeout)
	}
}

func TestExecutor_TimeoutDefaults(t *testing.T) {
	exec := &Executor{Timeout: 1000 * time.Millisecond}
	if got := exec.softTimeout(); got != 800*time.Millisecond {
		t.Errorf("softTimeout = %v, want 800ms", got)
	}
	if got := exec.hardDeadline(); got != 2000*time.Millisecond {
		t.Errorf("hardDeadline = %v, want 2s", got)
	}
}
