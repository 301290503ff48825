package analyzer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// BrowserEngine implements Engine on one headless Chrome process via
// chromedp. Every Acquire opens a fresh tab, so tasks never share
// browser state; the process itself is shared across the whole run.
type BrowserEngine struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewBrowserEngine starts a Chrome exec allocator. The browser process
// launches lazily on the first Acquire.
func NewBrowserEngine(headless bool) *BrowserEngine {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("mute-audio", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &BrowserEngine{allocCtx: allocCtx, allocCancel: allocCancel}
}

// Acquire opens a tab and navigates to the origin, waiting for the body
// to be ready. Cancellation of ctx tears the tab down immediately.
func (e *BrowserEngine) Acquire(ctx context.Context, origin string) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(e.allocCtx)
	stop := context.AfterFunc(ctx, tabCancel)

	url := origin
	if !hasScheme(url) {
		url = "https://" + url
	}
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	stop()
	if err != nil {
		tabCancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	return &browserPage{origin: origin, ctx: tabCtx, cancel: tabCancel}, nil
}

// Close shuts the allocator (and with it the browser process) down.
func (e *BrowserEngine) Close() error {
	e.allocCancel()
	return nil
}

func hasScheme(s string) bool {
	for i := 0; i+2 < len(s); i++ {
		if s[i] == ':' {
			return s[i+1] == '/' && s[i+2] == '/'
		}
	}
	return false
}

// browserPage is one chromedp tab.
type browserPage struct {
	origin string
	ctx    context.Context
	cancel context.CancelFunc
}

func (p *browserPage) Origin() string { return p.origin }

// Release closes the tab gracefully, racing the close against ctx. If
// the graceful path hangs past the release deadline the tab context is
// cancelled outright so the worker is never blocked on teardown.
func (p *browserPage) Release(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(p.ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

// run executes chromedp actions on the tab, abandoning them (their
// eventual resolution is discarded) when ctx is done first.
func (p *browserPage) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(p.ctx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScriptTool is a Tool that injects an audit script bundle into the
// page and evaluates a collect expression whose (possibly async) result
// is the tool's findings. All concrete browser-based tools (axe-style
// engines and friends) are instances of this adapter; only the script
// and collect expression differ.
type ScriptTool struct {
	name    string
	source  string
	collect string
}

// scriptFinding is the wire shape the collect expression must resolve to.
type scriptFinding struct {
	Categories   []string `json:"categories"`
	RuleIDs      []string `json:"ruleIds"`
	FindingCount int      `json:"findingCount"`
}

// NewScriptTool builds a tool from an in-memory script source.
func NewScriptTool(name, source, collect string) *ScriptTool {
	return &ScriptTool{name: name, source: source, collect: collect}
}

// LoadScriptTool builds a tool from a script bundle on disk.
func LoadScriptTool(name, scriptPath, collect string) (*ScriptTool, error) {
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("tool %s: read script: %w", name, err)
	}
	return NewScriptTool(name, string(src), collect), nil
}

func (t *ScriptTool) Name() string { return t.name }

// Analyze injects the bundle and collects findings. Repeated injection
// of independent bundles on the same page must not cross-contaminate;
// each bundle owns its own globals.
func (t *ScriptTool) Analyze(ctx context.Context, p Page) (Finding, error) {
	bp, ok := p.(*browserPage)
	if !ok {
		return Finding{}, fmt.Errorf("tool %s: page does not support script injection", t.name)
	}

	start := time.Now()
	var out scriptFinding
	err := bp.run(ctx,
		chromedp.Evaluate(t.source, nil),
		chromedp.Evaluate(t.collect, &out, awaitPromise),
	)
	if err != nil {
		return Finding{}, fmt.Errorf("tool %s: evaluate: %w", t.name, err)
	}
	return Finding{
		TimeMs:       time.Since(start).Milliseconds(),
		Categories:   out.Categories,
		RuleIDs:      out.RuleIDs,
		FindingCount: out.FindingCount,
	}, nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

var (
	_ Engine = (*BrowserEngine)(nil)
	_ Tool   = (*ScriptTool)(nil)
)
