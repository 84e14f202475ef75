package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigls/facload/internal/exitcode"
	"github.com/sigls/facload/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Stage a Parquet or XLSX extract into staging.records",
	RunE:  runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&cfg.FilePath, "file", "", "Path to .parquet or .xlsx file (required)")
	f.BoolVar(&cfg.Force, "force", false, "Re-import even if file SHA already exists")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	log := setupLog()
	ctx := context.Background()

	if err := cfg.ValidateWithDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	pool := connect(ctx, log)
	defer pool.Close()

	summary, err := ingest.Run(ctx, pool, log, &cfg)
	if err != nil {
		var pe *ingest.PipelineError
		if errors.As(err, &pe) {
			log.Error().Err(pe.Err).Str("phase", pe.Phase).Msg("ingest failed")
			switch pe.Phase {
			case "preflight", "read":
				os.Exit(exitcode.ValidationError)
			case "stage":
				os.Exit(exitcode.CopyError)
			}
		}
		log.Error().Err(err).Msg("ingest failed")
		os.Exit(exitcode.TransformError)
	}

	if summary.AlreadyLoaded {
		fmt.Printf("File already staged as ingest run %d; nothing to do\n", summary.IngestRunID)
		return nil
	}
	fmt.Printf("Ingest complete: %d rows read, %d staged, %d already staged, %d skipped, %d duplicates (%.1fs)\n",
		summary.Transform.Input, summary.RowsStaged, summary.RowsExisting,
		summary.Transform.Skipped, summary.Transform.Duplicates, summary.DurationTotal.Seconds())
	return nil
}
