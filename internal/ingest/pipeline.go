package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sigls/facload/internal/config"
	"github.com/sigls/facload/internal/db"
	"github.com/sigls/facload/internal/model"
	"github.com/sigls/facload/internal/rawread"
)

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Run executes the ingest pipeline: preflight → read → transform → stage.
func Run(ctx context.Context, pool db.Pool, log zerolog.Logger, cfg *config.Config) (*model.IngestSummary, error) {
	totalStart := time.Now()

	// Phase 1: Preflight
	log.Info().Str("file", cfg.FilePath).Msg("starting preflight")
	pf, err := Preflight(ctx, pool, log, cfg.FilePath, cfg.Force)
	if err != nil {
		return nil, &PipelineError{Phase: "preflight", Err: err}
	}

	summary := &model.IngestSummary{
		FilePath:      pf.FilePath,
		FileSHA256:    pf.FileSHA256,
		IngestRunID:   pf.IngestRunID,
		IngestBatchID: pf.IngestBatchID.String(),
	}

	if pf.AlreadyLoaded {
		log.Info().
			Int64("ingest_run_id", pf.IngestRunID).
			Str("sha256", pf.FileSHA256).
			Msg("file already staged, skipping (use --force to re-import)")
		summary.AlreadyLoaded = true
		summary.DurationTotal = time.Since(totalStart)
		return summary, nil
	}

	if err := UpdateStatus(ctx, pool, pf.IngestRunID, RunStaging); err != nil {
		return nil, &PipelineError{Phase: "preflight", Err: err}
	}

	// Phase 2: Read
	readStart := time.Now()
	rows, err := readRows(cfg.FilePath, cfg.RawColumns)
	if err != nil {
		_ = UpdateStatus(ctx, pool, pf.IngestRunID, RunFailed)
		return nil, &PipelineError{Phase: "read", Err: err}
	}
	summary.DurationRead = time.Since(readStart)

	// Phase 3: Transform
	tr := Transform(rows, &pf.IngestRunID, log)
	summary.Transform = tr.Stats
	summary.DurationTransform = tr.Duration

	// Phase 4: Stage
	sr, err := Stage(ctx, pool, log, pf.IngestRunID, tr)
	if err != nil {
		_ = UpdateStatus(ctx, pool, pf.IngestRunID, RunFailed)
		return nil, &PipelineError{Phase: "stage", Err: err}
	}
	summary.RowsStaged = sr.RowsStaged
	summary.RowsExisting = sr.RowsExisting
	summary.DurationStage = sr.Duration
	summary.DurationTotal = time.Since(totalStart)

	log.Info().
		Int64("rows_read", summary.Transform.Input).
		Int64("rows_staged", summary.RowsStaged).
		Int64("rows_existing", summary.RowsExisting).
		Int64("rows_skipped", summary.Transform.Skipped).
		Int64("rows_duplicate", summary.Transform.Duplicates).
		Str("total_duration", summary.DurationTotal.String()).
		Msg("ingest pipeline complete")

	return summary, nil
}

// Plan reads and transforms a file without touching the database.
func Plan(path string, aliases map[string][]string, log zerolog.Logger) (*TransformResult, error) {
	rows, err := readRows(path, aliases)
	if err != nil {
		return nil, &PipelineError{Phase: "read", Err: err}
	}
	return Transform(rows, nil, log), nil
}

func readRows(path string, aliases map[string][]string) ([]model.RawRow, error) {
	src, err := rawread.Open(path, aliases)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	rows, err := rawread.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}
