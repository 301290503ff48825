package benchmark

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"concord/internal/concordance"
	"concord/internal/format"
	"concord/internal/resultstore"
	"concord/internal/runner"
)

// Summary is the user-visible outcome breakdown of one run.
type Summary struct {
	Attempted    int
	OK           int
	Errored      int
	SoftTimeouts int
	HardTimeouts int
	NavFailures  int
	OtherErrors  int
	ToolFailures map[string]int
}

// Summarize classifies every record by outcome and error category.
func Summarize(records []resultstore.Record, tools []string) Summary {
	s := Summary{ToolFailures: make(map[string]int, len(tools))}
	for _, name := range tools {
		s.ToolFailures[name] = 0
	}
	for _, rec := range records {
		s.Attempted++
		if rec.Status == resultstore.StatusOK {
			s.OK++
		} else {
			s.Errored++
			switch {
			case rec.Error == runner.MsgTimeout:
				s.SoftTimeouts++
			case rec.Error == runner.MsgHardTimeout:
				s.HardTimeouts++
			case strings.HasPrefix(rec.Error, "navigate:"):
				s.NavFailures++
			default:
				s.OtherErrors++
			}
		}
		for name, tr := range rec.Tools {
			if tr.Status == resultstore.StatusError {
				s.ToolFailures[name]++
			}
		}
	}
	return s
}

// Render returns the summary as a table.
func (s Summary) Render(elapsed time.Duration, mode format.Mode) string {
	tb := format.NewTable(mode)
	tb.Header("Outcome", "Count", "Share")
	tb.Row("ok", s.OK, format.Percent(s.OK, s.Attempted))
	tb.Row("error: soft timeout", s.SoftTimeouts, format.Percent(s.SoftTimeouts, s.Attempted))
	tb.Row("error: hard timeout", s.HardTimeouts, format.Percent(s.HardTimeouts, s.Attempted))
	tb.Row("error: navigation", s.NavFailures, format.Percent(s.NavFailures, s.Attempted))
	tb.Row("error: other", s.OtherErrors, format.Percent(s.OtherErrors, s.Attempted))
	tb.Footer("attempted", s.Attempted, format.FmtDuration(elapsed))
	tb.Columns(
		format.ColumnConfig{Number: 2, Align: format.AlignRight},
		format.ColumnConfig{Number: 3, Align: format.AlignRight},
	)

	var b strings.Builder
	b.WriteString(tb.String())
	b.WriteString("\n")
	for _, name := range sortedKeys(s.ToolFailures) {
		if n := s.ToolFailures[name]; n > 0 {
			fmt.Fprintf(&b, "tool %s failed on %d target(s)\n", name, n)
		}
	}
	return b.String()
}

// RenderConcordance renders the bucket counts and pairwise kappas for
// every category.
func RenderConcordance(tables map[string]*concordance.Table, tools []string, mode format.Mode) string {
	cats := concordance.Categories(tables)
	if len(cats) == 0 {
		return "no categories found\n"
	}

	var b strings.Builder

	buckets := format.NewTable(mode)
	header := []string{"Category"}
	for k := 0; k <= len(tools); k++ {
		header = append(header, fmt.Sprintf("%d tools", k))
	}
	buckets.Header(header...)
	for _, cat := range cats {
		row := []any{cat}
		for _, n := range tables[cat].Counts {
			row = append(row, n)
		}
		buckets.Row(row...)
	}
	b.WriteString(buckets.String())
	b.WriteString("\n")

	pairs := format.NewTable(mode)
	pairs.Header("Category", "Pair", "Both", "First only", "Second only", "Neither", "Kappa")
	for _, cat := range cats {
		for _, p := range tables[cat].Pairs {
			pairs.Row(cat, p.ToolA+"/"+p.ToolB,
				p.Table.Both, p.Table.FirstOnly, p.Table.SecondOnly, p.Table.Neither,
				format.FmtKappa(p.Kappa))
		}
	}
	pairs.Columns(format.ColumnConfig{Number: 7, Align: format.AlignRight})
	b.WriteString(pairs.String())
	b.WriteString("\n")
	return b.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
