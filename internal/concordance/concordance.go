// Package concordance turns the accumulated audit records into
// agreement statistics: per-category multi-way count buckets and
// pairwise Cohen's kappa. It holds no state of its own; everything here
// is a pure function of the record collection, recomputable from the
// result store alone.
package concordance

import (
	"sort"

	"concord/internal/resultstore"
)

// Contingency is the 2x2 agreement table between two tools on a binary
// found/not-found signal.
type Contingency struct {
	Both       int `json:"both"`
	FirstOnly  int `json:"firstOnly"`
	SecondOnly int `json:"secondOnly"`
	Neither    int `json:"neither"`
}

// N is the number of rated items.
func (c Contingency) N() int {
	return c.Both + c.FirstOnly + c.SecondOnly + c.Neither
}

// Kappa computes Cohen's kappa for the table. When expected agreement
// pe reaches 1 (both raters unanimous on every item) the statistic is
// defined as 1: that is the only way to keep the formula total without
// dividing by zero. An empty table is likewise perfect vacuous
// agreement.
func Kappa(c Contingency) float64 {
	n := float64(c.N())
	if n == 0 {
		return 1
	}
	po := float64(c.Both+c.Neither) / n
	p1 := float64(c.Both+c.FirstOnly) / n
	p2 := float64(c.Both+c.SecondOnly) / n
	pe := p1*p2 + (1-p1)*(1-p2)
	if pe == 1 {
		return 1
	}
	return (po - pe) / (1 - pe)
}

// PairKappa is the agreement between one unordered pair of tools.
type PairKappa struct {
	ToolA string      `json:"toolA"`
	ToolB string      `json:"toolB"`
	Table Contingency `json:"table"`
	Kappa float64     `json:"kappa"`
}

// Table is the full concordance for one category across all ok records.
type Table struct {
	Category string `json:"category"`
	// Counts[k] is the number of targets where exactly k of the N
	// tools found the category; len(Counts) == N+1.
	Counts []int       `json:"counts"`
	Pairs  []PairKappa `json:"pairs"`
}

// Compute derives the per-category concordance tables from the record
// collection, restricted to status=ok records. The category universe is
// the union of everything any tool ever found. Tools must be the
// configured tool order; pair order follows it.
func Compute(records []resultstore.Record, tools []string) map[string]*Table {
	ok := make([]resultstore.Record, 0, len(records))
	for _, r := range records {
		if r.Status == resultstore.StatusOK {
			ok = append(ok, r)
		}
	}

	categories := make(map[string]struct{})
	for _, r := range ok {
		for _, tr := range r.Tools {
			for _, c := range tr.CategoriesFound {
				categories[c] = struct{}{}
			}
		}
	}

	out := make(map[string]*Table, len(categories))
	for cat := range categories {
		out[cat] = computeCategory(ok, tools, cat)
	}
	return out
}

func computeCategory(ok []resultstore.Record, tools []string, cat string) *Table {
	t := &Table{
		Category: cat,
		Counts:   make([]int, len(tools)+1),
	}

	// found[i][j]: did tool j find cat on record i.
	found := make([][]bool, len(ok))
	for i, r := range ok {
		bits := make([]bool, len(tools))
		n := 0
		for j, tool := range tools {
			if containsCategory(r.Tools[tool], cat) {
				bits[j] = true
				n++
			}
		}
		found[i] = bits
		t.Counts[n]++
	}

	for a := 0; a < len(tools); a++ {
		for b := a + 1; b < len(tools); b++ {
			var c Contingency
			for i := range ok {
				switch {
				case found[i][a] && found[i][b]:
					c.Both++
				case found[i][a]:
					c.FirstOnly++
				case found[i][b]:
					c.SecondOnly++
				default:
					c.Neither++
				}
			}
			t.Pairs = append(t.Pairs, PairKappa{
				ToolA: tools[a],
				ToolB: tools[b],
				Table: c,
				Kappa: Kappa(c),
			})
		}
	}
	return t
}

func containsCategory(tr resultstore.ToolRecord, cat string) bool {
	for _, c := range tr.CategoriesFound {
		if c == cat {
			return true
		}
	}
	return false
}

// Categories returns the sorted category ids of a computed table set.
func Categories(tables map[string]*Table) []string {
	cats := make([]string, 0, len(tables))
	for c := range tables {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}
