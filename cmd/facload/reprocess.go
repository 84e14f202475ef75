package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <facility-id>",
	Short: "Re-link doctors and specialties of a promoted facility",
	Args:  cobra.ExactArgs(1),
	RunE:  runReprocess,
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Re-derive the specialty set of every active facility",
	RunE:  runRecompute,
}

func init() {
	rootCmd.AddCommand(reprocessCmd, recomputeCmd)
}

func runReprocess(cmd *cobra.Command, args []string) error {
	log := setupLog()
	ctx := context.Background()
	id := parseID(args[0])

	pool := connect(ctx, log)
	defer pool.Close()

	res, err := newService(pool, log).Reprocess(ctx, id)
	if err != nil {
		exitOnError(log, err, "reprocess failed")
	}
	fmt.Printf("Facility %d: %d records, %d doctors, %d specialties (+%d/-%d)\n",
		res.FacilityID, res.RecordsScanned, res.DoctorsProcessed, res.Sync.Total, res.Sync.Added, res.Sync.Removed)
	return nil
}

func runRecompute(cmd *cobra.Command, args []string) error {
	log := setupLog()
	ctx := context.Background()

	pool := connect(ctx, log)
	defer pool.Close()

	sum, err := newService(pool, log).RecomputeAll(ctx)
	if err != nil {
		exitOnError(log, err, "recompute failed")
	}
	fmt.Printf("Recompute complete: %d facilities, %d changed, +%d/-%d links (%.1fs)\n",
		sum.FacilitiesScanned, sum.FacilitiesChanged, sum.LinksAdded, sum.LinksRemoved, sum.Duration.Seconds())
	return nil
}
