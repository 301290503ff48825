package concordance

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"concord/internal/resultstore"
)

func TestKappa(t *testing.T) {
	tests := []struct {
		name string
		c    Contingency
		want float64
	}{
		// n=10, po=1, p1=p2=0.5, pe=0.5 => kappa=1
		{"perfect agreement", Contingency{Both: 5, Neither: 5}, 1},
		// n=10, po=0.8, p1=p2=0.9, pe=0.82 => (0.8-0.82)/(1-0.82)
		{"near-total disagreement with pe near 1", Contingency{Both: 8, FirstOnly: 1, SecondOnly: 1}, -0.1111111111},
		// p1=p2=1 => pe=1; defined as 1, no division by zero
		{"both raters always positive", Contingency{Both: 10}, 1},
		{"both raters always negative", Contingency{Neither: 10}, 1},
		{"empty table", Contingency{}, 1},
		// n=8, po=0, p1=p2=0.5, pe=0.5 => kappa=-1
		{"total disagreement", Contingency{FirstOnly: 4, SecondOnly: 4}, -1},
		// n=4, po=0.5, p1=0.5, p2=0.5, pe=0.5 => kappa=0
		{"chance-level agreement", Contingency{Both: 1, FirstOnly: 1, SecondOnly: 1, Neither: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Kappa(tt.c)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Kappa(%+v) = %v, want %v", tt.c, got, tt.want)
			}
		})
	}
}

// okRecord builds a status=ok record where each listed tool found the
// given categories.
func okRecord(origin string, found map[string][]string) resultstore.Record {
	rec := resultstore.NewRecord(origin, 1)
	rec.Status = resultstore.StatusOK
	for tool, cats := range found {
		rec.Tools[tool] = resultstore.ToolRecord{
			TimeMs: 1, Status: resultstore.StatusOK, CategoriesFound: cats,
		}
	}
	return rec
}

func TestCompute_Buckets(t *testing.T) {
	tools := []string{"a", "b", "c"}
	records := []resultstore.Record{
		okRecord("one.example", map[string][]string{
			"a": {"1.1.1"}, "b": {"1.1.1"}, "c": {"1.1.1"},
		}),
		okRecord("two.example", map[string][]string{
			"a": {"1.1.1"}, "b": {}, "c": {},
		}),
		okRecord("three.example", map[string][]string{
			"a": {}, "b": {}, "c": {},
		}),
		okRecord("four.example", map[string][]string{
			"a": {"1.1.1"}, "b": {"1.1.1"}, "c": {},
		}),
	}

	tables := Compute(records, tools)
	table, ok := tables["1.1.1"]
	if !ok {
		t.Fatalf("no table for 1.1.1, got %v", Categories(tables))
	}

	// found by: 3 tools on one, 1 tool on two, 0 on three, 2 on four
	if diff := cmp.Diff([]int{1, 1, 1, 1}, table.Counts); diff != "" {
		t.Errorf("bucket counts (-want +got):\n%s", diff)
	}
	if len(table.Pairs) != 3 {
		t.Fatalf("got %d pairs, want 3", len(table.Pairs))
	}

	// a/b over the four records: both on one+four, a-only on two,
	// neither on three.
	ab := table.Pairs[0]
	if ab.ToolA != "a" || ab.ToolB != "b" {
		t.Fatalf("first pair is %s/%s", ab.ToolA, ab.ToolB)
	}
	want := Contingency{Both: 2, FirstOnly: 1, SecondOnly: 0, Neither: 1}
	if diff := cmp.Diff(want, ab.Table); diff != "" {
		t.Errorf("a/b contingency (-want +got):\n%s", diff)
	}
}

func TestCompute_SkipsErrorRecords(t *testing.T) {
	tools := []string{"a", "b"}
	bad := resultstore.NewRecord("dead.example", 2)
	bad.Status = resultstore.StatusError
	bad.Error = "timeout"
	bad.Tools["a"] = resultstore.ToolRecord{
		TimeMs: 1, Status: resultstore.StatusOK, CategoriesFound: []string{"9.9.9"},
	}

	records := []resultstore.Record{
		okRecord("live.example", map[string][]string{"a": {"1.1.1"}, "b": {"1.1.1"}}),
		bad,
	}

	tables := Compute(records, tools)
	if _, ok := tables["9.9.9"]; ok {
		t.Error("error record contributed a category")
	}
	table := tables["1.1.1"]
	if n := table.Pairs[0].Table.N(); n != 1 {
		t.Errorf("pair n = %d, want 1 (error record must not count)", n)
	}
}

func TestCompute_CategoryUnion(t *testing.T) {
	tools := []string{"a", "b"}
	records := []resultstore.Record{
		okRecord("x.example", map[string][]string{"a": {"1.1.1"}, "b": {"4.1.2"}}),
	}
	tables := Compute(records, tools)

	got := Categories(tables)
	if diff := cmp.Diff([]string{"1.1.1", "4.1.2"}, got); diff != "" {
		t.Errorf("category union (-want +got):\n%s", diff)
	}

	// 4.1.2: only b found it => a/b disagree on the single record.
	p := tables["4.1.2"].Pairs[0]
	want := Contingency{SecondOnly: 1}
	if diff := cmp.Diff(want, p.Table); diff != "" {
		t.Errorf("4.1.2 contingency (-want +got):\n%s", diff)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	tools := []string{"a", "b"}
	records := []resultstore.Record{
		okRecord("x.example", map[string][]string{"a": {"1.1.1"}, "b": {"1.1.1"}}),
		okRecord("y.example", map[string][]string{"a": {"1.1.1"}, "b": {}}),
	}
	first := Compute(records, tools)
	second := Compute(records, tools)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Compute not idempotent:\n%s", diff)
	}
}
