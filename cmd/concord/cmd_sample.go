package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"concord/internal/benchmark"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Print the deterministic sample without running anything",
	Long: `Sample loads the population and denylist, applies exclusion, draws the
seeded sample, applies sharding, and prints the selected targets. Useful
for verifying reproducibility and shard boundaries before a long run.`,
	RunE: runSample,
}

func init() {
	// Sampling is configured exactly like run; the flag set is shared.
	sampleCmd.Flags().AddFlagSet(runCmd.Flags())
}

func runSample(cmd *cobra.Command, _ []string) error {
	cfg, err := runConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	targets, res, err := benchmark.PrepareSample(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# seed=%d population=%d eligible=%d sample=%d shard=%d\n",
		res.Seed, res.PopulationSize, res.EligibleSize, res.SampleSize, res.ShardSize)
	for _, t := range targets {
		fmt.Fprintf(out, "%d,%s\n", t.Rank, t.Origin)
	}
	return nil
}
