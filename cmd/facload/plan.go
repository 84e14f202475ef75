package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sigls/facload/internal/exitcode"
	"github.com/sigls/facload/internal/ingest"
	"github.com/sigls/facload/internal/normalize"
	"github.com/sigls/facload/internal/promote"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry-run transform and grouping stats (no writes)",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVar(&cfg.FilePath, "file", "", "Path to .parquet or .xlsx file (required)")
	_ = planCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	log := setupLog()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	sha, err := normalize.FileHash(cfg.FilePath)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash file")
		os.Exit(exitcode.ValidationError)
	}

	tr, err := ingest.Plan(cfg.FilePath, cfg.RawColumns, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to read file")
		os.Exit(exitcode.ValidationError)
	}

	groups := make(map[string]int)
	ungrouped := 0
	for i := range tr.Records {
		key, ok := promote.GroupKey(&tr.Records[i])
		if !ok {
			ungrouped++
			continue
		}
		groups[key]++
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if groups[keys[i]] != groups[keys[j]] {
			return groups[keys[i]] > groups[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Println("=== facload plan ===")
	fmt.Printf("File:        %s\n", cfg.FilePath)
	fmt.Printf("SHA-256:     %s\n", sha)
	fmt.Printf("Rows read:   %d\n", tr.Stats.Input)
	fmt.Printf("Records:     %d\n", tr.Stats.Output)
	fmt.Printf("Skipped:     %d\n", tr.Stats.Skipped)
	fmt.Printf("Duplicates:  %d\n", tr.Stats.Duplicates)
	fmt.Printf("Groups:      %d (%d records without a facility name)\n", len(groups), ungrouped)
	fmt.Println()
	fmt.Println("Largest groups:")
	for i, k := range keys {
		if i == 10 {
			break
		}
		fmt.Printf("  %5d  %s  (%s)\n", groups[k], k, normalize.FacilityOriginID(k))
	}
	return nil
}
