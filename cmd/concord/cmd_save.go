package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"concord/internal/resultstore"
	"concord/internal/store"
)

var saveFlags struct {
	file   string
	dbPath string
	seed   int64
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Import a JSONL results file into the SQLite warehouse",
	RunE:  runSave,
}

func init() {
	f := saveCmd.Flags()
	f.StringVarP(&saveFlags.file, "file", "f", "", "Results JSONL file (required)")
	f.StringVar(&saveFlags.dbPath, "db", store.DefaultDBPath, "Warehouse DB path")
	f.Int64Var(&saveFlags.seed, "seed", 0, "Seed the run was sampled with (recorded as run metadata)")

	_ = saveCmd.MarkFlagRequired("file")
}

func runSave(cmd *cobra.Command, _ []string) error {
	records, err := resultstore.ReadFile(saveFlags.file)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%s: no records to import", saveFlags.file)
	}

	st, err := store.Open(saveFlags.dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	runID, err := st.ImportRun(saveFlags.file, saveFlags.seed, toolUnion(records), records)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %d records from %s as run %d\n",
		len(records), saveFlags.file, runID)

	runs, err := st.ListRuns()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "warehouse now holds %d run(s)\n", len(runs))
	return nil
}
