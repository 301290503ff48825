package format

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestTableBuilder_ASCII(t *testing.T) {
	tb := NewTable(ASCII)
	tb.Header("Category", "Count")
	tb.Row("1.1.1", 12)
	tb.Footer("total", 12)
	tb.Columns(ColumnConfig{Number: 2, Align: AlignRight})

	out := tb.String()
	for _, want := range []string{"CATEGORY", "1.1.1", "12", "TOTAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("ASCII output missing %q:\n%s", want, out)
		}
	}
}

func TestTableBuilder_Markdown(t *testing.T) {
	tb := NewTable(Markdown)
	tb.Header("Pair", "Kappa")
	tb.Row("axe/htmlcs", "0.812")

	out := tb.String()
	if !strings.Contains(out, "| Pair | Kappa |") {
		t.Errorf("not a markdown table:\n%s", out)
	}
	if !strings.Contains(out, "axe/htmlcs") {
		t.Errorf("row missing:\n%s", out)
	}
}

func TestFmtKappa(t *testing.T) {
	if got := FmtKappa(0.81234); got != "0.812" {
		t.Errorf("FmtKappa = %q", got)
	}
	if got := FmtKappa(math.NaN()); got != "n/a" {
		t.Errorf("FmtKappa(NaN) = %q", got)
	}
}

func TestFmtDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{0, "0s"},
	}
	for _, tt := range tests {
		if got := FmtDuration(tt.d); got != tt.want {
			t.Errorf("FmtDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s      string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"a very long string", 10, "a very ..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.maxLen); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(1, 3); got != "33%" {
		t.Errorf("Percent(1, 3) = %q", got)
	}
	if got := Percent(5, 0); got != "0%" {
		t.Errorf("Percent(5, 0) = %q", got)
	}
}
