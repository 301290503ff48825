// Package analyzer defines the capability contract between the task
// executor and the concrete content-analysis tools, plus the browser
// engine that loads targets for them. The executor only sees the
// interfaces here; chromedp plumbing and per-tool adapters stay out of
// the concurrency core.
package analyzer

import "context"

// Finding is the fixed result contract every tool adapter maps into.
type Finding struct {
	TimeMs       int64
	Categories   []string
	RuleIDs      []string
	FindingCount int
}

// Page is an exclusive handle on one loaded target. It is owned by the
// task that acquired it, is never shared across workers, and must be
// released on every exit path.
type Page interface {
	Origin() string
	// Release tears the page down. The context bounds the release
	// itself so a hung teardown cannot block a worker indefinitely.
	Release(ctx context.Context) error
}

// Engine acquires pages. Acquire navigates to the origin and blocks
// until the target is ready for analysis or ctx is done.
type Engine interface {
	Acquire(ctx context.Context, origin string) (Page, error)
	Close() error
}

// Tool runs one analysis pass over a loaded page. A tool must be safely
// callable once per task alongside other tools on the same page without
// cross-contamination, and must stop using the page once ctx is done
// even if its underlying operation never settles.
type Tool interface {
	Name() string
	Analyze(ctx context.Context, p Page) (Finding, error)
}
