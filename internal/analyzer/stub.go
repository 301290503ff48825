package analyzer

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync/atomic"
)

// DefaultStubCategories is the category universe the stub tools report
// over: a handful of WCAG success criteria.
var DefaultStubCategories = []string{
	"1.1.1", "1.3.1", "1.4.3", "2.4.4", "3.3.2", "4.1.2",
}

// StubEngine is a no-browser Engine for dry runs and tests. Pages load
// instantly and release instantly.
type StubEngine struct {
	acquired atomic.Int64
	released atomic.Int64
}

func NewStubEngine() *StubEngine { return &StubEngine{} }

func (e *StubEngine) Acquire(_ context.Context, origin string) (Page, error) {
	e.acquired.Add(1)
	return &stubPage{origin: origin, engine: e}, nil
}

func (e *StubEngine) Close() error { return nil }

// Acquired and Released expose lifecycle counts for leak assertions.
func (e *StubEngine) Acquired() int64 { return e.acquired.Load() }
func (e *StubEngine) Released() int64 { return e.released.Load() }

type stubPage struct {
	origin string
	engine *StubEngine
}

func (p *stubPage) Origin() string { return p.origin }

func (p *stubPage) Release(_ context.Context) error {
	p.engine.released.Add(1)
	return nil
}

// StubTool reports deterministic findings derived from a hash of the
// origin and category, with a small per-tool disagreement bias, so
// repeated runs over the same sample produce identical concordance
// tables with non-trivial kappa values.
type StubTool struct {
	name       string
	categories []string
}

// NewStubTool builds a stub over the default category universe.
func NewStubTool(name string) *StubTool {
	return &StubTool{name: name, categories: DefaultStubCategories}
}

func (t *StubTool) Name() string { return t.name }

func (t *StubTool) Analyze(ctx context.Context, p Page) (Finding, error) {
	if err := ctx.Err(); err != nil {
		return Finding{}, err
	}
	f := Finding{TimeMs: 0}
	for _, cat := range t.categories {
		base := hash32(p.Origin() + ":" + cat)
		found := base%3 != 0
		// Tool-specific flip: roughly one in seven calls disagrees
		// with the consensus view.
		if hash32(t.name+":"+p.Origin()+":"+cat)%7 == 0 {
			found = !found
		}
		if !found {
			continue
		}
		f.Categories = append(f.Categories, cat)
		f.RuleIDs = append(f.RuleIDs, fmt.Sprintf("%s/%s", t.name, cat))
		f.FindingCount += 1 + int(base%4)
	}
	return f, nil
}

func hash32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

var (
	_ Engine = (*StubEngine)(nil)
	_ Tool   = (*StubTool)(nil)
)
