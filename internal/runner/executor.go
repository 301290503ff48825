package runner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"concord/internal/analyzer"
	"concord/internal/logging"
	"concord/internal/population"
	"concord/internal/resultstore"
)

// Error messages recorded on timed-out tasks. The summary classifies
// records by these, so they are stable strings, not free text.
const (
	MsgTimeout     = "timeout"
	MsgHardTimeout = "hard timeout"
)

const (
	// DefaultSoftFraction of the per-target budget guards the analyzer
	// work: navigation plus tool invocations.
	DefaultSoftFraction = 0.8
	// DefaultHardMultiple of the budget guards the entire task
	// including acquire and release. It is the backstop against
	// resource leaks when the soft path's own cleanup hangs.
	DefaultHardMultiple = 2.0
	// DefaultReleaseGrace bounds the page release itself.
	DefaultReleaseGrace = 5 * time.Second
)

// Executor runs the full lifecycle of one target: acquire a page, run
// every tool with per-tool failure isolation, release the page, and
// produce exactly one record on every exit path.
type Executor struct {
	Engine  analyzer.Engine
	Tools   []analyzer.Tool
	Timeout time.Duration

	SoftFraction float64       // 0 means DefaultSoftFraction
	HardMultiple float64       // 0 means DefaultHardMultiple
	ReleaseGrace time.Duration // 0 means DefaultReleaseGrace
}

func (e *Executor) softTimeout() time.Duration {
	f := e.SoftFraction
	if f <= 0 {
		f = DefaultSoftFraction
	}
	return time.Duration(float64(e.Timeout) * f)
}

func (e *Executor) hardDeadline() time.Duration {
	m := e.HardMultiple
	if m <= 0 {
		m = DefaultHardMultiple
	}
	return time.Duration(float64(e.Timeout) * m)
}

func (e *Executor) releaseGrace() time.Duration {
	if e.ReleaseGrace > 0 {
		return e.ReleaseGrace
	}
	return DefaultReleaseGrace
}

// Execute races the task against the hard deadline. The race is decided
// by a single select: whichever side loses is discarded, so a deadline
// firing concurrently with a natural completion can never corrupt the
// record that wins.
func (e *Executor) Execute(ctx context.Context, t population.Target) resultstore.Record {
	log := logging.New("executor")
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hard := time.NewTimer(e.hardDeadline())
	defer hard.Stop()

	done := make(chan resultstore.Record, 1)
	go func() { done <- e.runTask(taskCtx, t) }()

	select {
	case rec := <-done:
		return rec
	case <-hard.C:
		// Cancelling the task context forcibly tears down whatever
		// page the attempt still holds; the attempt's record, if it
		// ever materializes, lands in the buffered channel and is
		// dropped.
		cancel()
		rec := resultstore.NewRecord(t.Origin, t.Rank)
		rec.Status = resultstore.StatusError
		rec.Error = MsgHardTimeout
		log.Warn("hard deadline exceeded", "origin", t.Origin)
		return rec
	case <-ctx.Done():
		cancel()
		rec := resultstore.NewRecord(t.Origin, t.Rank)
		rec.Status = resultstore.StatusError
		rec.Error = fmt.Sprintf("run aborted: %v", ctx.Err())
		return rec
	}
}

// runTask is the soft-timeout path: everything inside it runs under a
// context bounded by SoftFraction of the budget, and the page release
// is guaranteed (with its own grace deadline) before the record is
// handed back.
func (e *Executor) runTask(ctx context.Context, t population.Target) resultstore.Record {
	rec := resultstore.NewRecord(t.Origin, t.Rank)
	log := logging.New("executor")
	started := time.Now()

	softCtx, cancelSoft := context.WithTimeout(ctx, e.softTimeout())
	defer cancelSoft()

	page, err := e.Engine.Acquire(softCtx, t.Origin)
	if err != nil {
		rec.Status = resultstore.StatusError
		if softCtx.Err() != nil {
			rec.Error = MsgTimeout
		} else {
			rec.Error = fmt.Sprintf("navigate: %v", err)
		}
		return rec
	}

	findings := make(map[string]analyzer.Finding, len(e.Tools))
	timedOut := false
	for _, tool := range e.Tools {
		if softCtx.Err() != nil {
			timedOut = true
			break
		}
		toolStart := time.Now()
		finding, err := tool.Analyze(softCtx, page)
		if err != nil {
			if softCtx.Err() != nil {
				timedOut = true
			}
			// One failing tool must not keep the others from
			// contributing to the same record.
			rec.Tools[tool.Name()] = resultstore.ToolRecord{
				TimeMs:          resultstore.FailedTimeMs,
				Status:          resultstore.StatusError,
				Error:           err.Error(),
				CategoriesFound: []string{},
			}
			log.Warn("tool failed", "origin", t.Origin, "tool", tool.Name(), "error", err)
			continue
		}
		timeMs := finding.TimeMs
		if timeMs <= 0 {
			timeMs = time.Since(toolStart).Milliseconds()
		}
		cats := append([]string(nil), finding.Categories...)
		sort.Strings(cats)
		rec.Tools[tool.Name()] = resultstore.ToolRecord{
			TimeMs:          timeMs,
			Status:          resultstore.StatusOK,
			CategoriesFound: cats,
		}
		findings[tool.Name()] = finding
	}

	e.releasePage(ctx, page, t.Origin, e.hardDeadline()-time.Since(started))

	if timedOut {
		rec.Status = resultstore.StatusError
		rec.Error = MsgTimeout
		return rec
	}
	rec.Status = resultstore.StatusOK
	rec.CategoryDetail = buildCategoryDetail(rec.Tools, findings)
	return rec
}

func (e *Executor) releasePage(ctx context.Context, page analyzer.Page, origin string, remaining time.Duration) {
	// Release still runs after a soft timeout, but it must finish inside
	// what is left of the hard budget: the grace deadline is clamped to
	// the remaining time so a hung teardown cannot hold the page past
	// the hard bound.
	grace := e.releaseGrace()
	if remaining < grace {
		grace = remaining
	}
	if grace < 0 {
		grace = 0
	}
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := page.Release(relCtx); err != nil {
		logging.New("executor").Warn("page release", "origin", origin, "error", err)
	}
}

// buildCategoryDetail derives the per-category breakdown from the tool
// results at record-creation time. A tool's rule ids and finding count
// are attributed to every category it reported.
func buildCategoryDetail(tools map[string]resultstore.ToolRecord, findings map[string]analyzer.Finding) []resultstore.CategoryDetail {
	union := make(map[string]struct{})
	for _, tr := range tools {
		for _, c := range tr.CategoriesFound {
			union[c] = struct{}{}
		}
	}
	if len(union) == 0 {
		return nil
	}
	cats := make([]string, 0, len(union))
	for c := range union {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	details := make([]resultstore.CategoryDetail, 0, len(cats))
	for _, cat := range cats {
		d := resultstore.CategoryDetail{
			Category: cat,
			PerTool:  make(map[string]resultstore.CategoryToolDetail, len(tools)),
		}
		for name, tr := range tools {
			found := false
			for _, c := range tr.CategoriesFound {
				if c == cat {
					found = true
					break
				}
			}
			detail := resultstore.CategoryToolDetail{Found: found}
			if found {
				f := findings[name]
				detail.RuleIDs = append([]string(nil), f.RuleIDs...)
				detail.FindingCount = f.FindingCount
			}
			d.PerTool[name] = detail
		}
		details = append(details, d)
	}
	return details
}
