package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"concord/internal/benchmark"
	"concord/internal/concordance"
	"concord/internal/format"
	"concord/internal/resultstore"
	"concord/internal/store"
)

var statsFlags struct {
	file     string
	dbPath   string
	runID    int64
	markdown bool
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Recompute concordance tables from stored results",
	Long: `Stats is a pure batch pass over a completed result set: it rebuilds the
multi-way buckets and pairwise kappas from scratch, either from a JSONL
results file or from a run imported into the SQLite warehouse.`,
	RunE: runStats,
}

func init() {
	f := statsCmd.Flags()
	f.StringVarP(&statsFlags.file, "file", "f", "", "Results JSONL file")
	f.StringVar(&statsFlags.dbPath, "db", store.DefaultDBPath, "Warehouse DB path")
	f.Int64Var(&statsFlags.runID, "run", 0, "Imported run id (reads from the warehouse instead of a file)")
	f.BoolVar(&statsFlags.markdown, "markdown", false, "Render tables as Markdown instead of ASCII")
}

func runStats(cmd *cobra.Command, _ []string) error {
	var records []resultstore.Record
	var err error
	switch {
	case statsFlags.runID != 0:
		st, openErr := store.Open(statsFlags.dbPath)
		if openErr != nil {
			return openErr
		}
		defer st.Close()
		records, err = st.ResultsForRun(statsFlags.runID)
		if err != nil {
			return err
		}
	case statsFlags.file != "":
		records, err = resultstore.ReadFile(statsFlags.file)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --file or --run is required")
	}
	if len(records) == 0 {
		return fmt.Errorf("no records to analyze")
	}

	tools := toolUnion(records)
	tables := concordance.Compute(records, tools)
	summary := benchmark.Summarize(records, tools)

	mode := format.ASCII
	if statsFlags.markdown {
		mode = format.Markdown
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, summary.Render(0, mode))
	fmt.Fprintln(out)
	fmt.Fprint(out, benchmark.RenderConcordance(tables, tools, mode))
	return nil
}

// toolUnion lists every tool name seen in the records, sorted.
func toolUnion(records []resultstore.Record) []string {
	set := make(map[string]struct{})
	for _, r := range records {
		for name := range r.Tools {
			set[name] = struct{}{}
		}
	}
	tools := make([]string, 0, len(set))
	for name := range set {
		tools = append(tools, name)
	}
	sort.Strings(tools)
	return tools
}
