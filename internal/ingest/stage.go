package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/sigls/facload/internal/db"
	embedsql "github.com/sigls/facload/internal/sql"
)

// StageResult holds metrics from the staging phase.
type StageResult struct {
	// RowsStaged counts newly inserted staging records.
	RowsStaged int64
	// RowsExisting counts records whose source key was already staged;
	// those rows keep their enrichment and status.
	RowsExisting int64
	Duration     time.Duration
}

const createTempStage = `CREATE TEMP TABLE _tmp_stage_records (
    ord                 BIGINT NOT NULL,
    ingest_run_id       BIGINT,
    source_key          TEXT NOT NULL,
    raw_facility_name   TEXT,
    raw_doctor_name     TEXT,
    raw_specialty_name  TEXT,
    status              TEXT NOT NULL
) ON COMMIT DROP`

const recordRunCounts = `UPDATE staging.ingest_runs
SET rows_read = $2, rows_staged = $3, rows_skipped = $4, rows_duplicate = $5, status = $6, updated_at = now()
WHERE ingest_run_id = $1`

// Stage COPY-loads transformed records into a temp table and inserts them
// into staging.records in transform order, leaving already-staged source
// keys untouched. Run counters are recorded in the same transaction.
func Stage(ctx context.Context, pool db.Pool, log zerolog.Logger, runID int64, tr *TransformResult) (*StageResult, error) {
	start := time.Now()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("stage begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, createTempStage); err != nil {
		return nil, fmt.Errorf("stage create temp table: %w", err)
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"_tmp_stage_records"},
		db.RecordSourceColumns(),
		db.NewRecordSource(tr.Records),
	)
	if err != nil {
		return nil, fmt.Errorf("stage copy: %w", err)
	}

	tag, err := tx.Exec(ctx, embedsql.InsertStagedRecords)
	if err != nil {
		return nil, fmt.Errorf("stage insert: %w", err)
	}
	staged := tag.RowsAffected()

	st := tr.Stats
	if _, err := tx.Exec(ctx, recordRunCounts, runID, st.Input, staged, st.Skipped, st.Duplicates, RunStaged); err != nil {
		return nil, fmt.Errorf("stage record counts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("stage commit: %w", err)
	}

	res := &StageResult{
		RowsStaged:   staged,
		RowsExisting: copied - staged,
		Duration:     time.Since(start),
	}

	log.Info().
		Int64("rows_copied", copied).
		Int64("rows_staged", res.RowsStaged).
		Int64("rows_existing", res.RowsExisting).
		Str("duration", res.Duration.String()).
		Msg("staging complete")

	return res, nil
}
