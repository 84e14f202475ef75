package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/sigls/facload/internal/db"
	"github.com/sigls/facload/internal/normalize"
	embedsql "github.com/sigls/facload/internal/sql"
)

// Ingest run statuses.
const (
	RunPending = "pending"
	RunStaging = "staging"
	RunStaged  = "staged"
	RunFailed  = "failed"
)

// PreflightResult holds the context resolved before any row is read.
type PreflightResult struct {
	FilePath   string
	FileSHA256 string
	FileSize   int64
	// IngestRunID is the staging.ingest_runs key, new or reused when the
	// same file content was registered before.
	IngestRunID int64
	// IngestBatchID identifies this attempt; re-imports get a fresh one.
	IngestBatchID uuid.UUID
	// AlreadyLoaded is true when the file's sha256 was already staged and
	// force mode is off.
	AlreadyLoaded bool
}

// Preflight hashes the input file and registers it as an ingest run.
func Preflight(ctx context.Context, q db.Querier, log zerolog.Logger, filePath string, force bool) (*PreflightResult, error) {
	start := time.Now()

	sha, err := normalize.FileHash(filePath)
	if err != nil {
		return nil, fmt.Errorf("preflight hash: %w", err)
	}
	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("preflight stat: %w", err)
	}

	batchID := uuid.New()
	runID, alreadyLoaded, err := registerRun(ctx, q, batchID, filePath, sha, stat.Size(), force)
	if err != nil {
		return nil, fmt.Errorf("preflight register run: %w", err)
	}

	log.Info().
		Str("file", filepath.Base(filePath)).
		Str("sha256", sha).
		Int64("ingest_run_id", runID).
		Bool("already_loaded", alreadyLoaded).
		Dur("duration", time.Since(start)).
		Msg("preflight complete")

	return &PreflightResult{
		FilePath:      filePath,
		FileSHA256:    sha,
		FileSize:      stat.Size(),
		IngestRunID:   runID,
		IngestBatchID: batchID,
		AlreadyLoaded: alreadyLoaded,
	}, nil
}

const lookupIngestRun = `SELECT ingest_run_id, status FROM staging.ingest_runs WHERE source_file_sha256 = $1`

const resetIngestRun = `UPDATE staging.ingest_runs
SET batch_id = $2, status = 'pending', updated_at = now()
WHERE ingest_run_id = $1`

func registerRun(ctx context.Context, q db.Querier, batchID uuid.UUID, filePath, sha string, size int64, force bool) (int64, bool, error) {
	var runID int64
	err := q.QueryRow(ctx, embedsql.RegisterIngestRun, batchID, filepath.Base(filePath), sha, size).Scan(&runID)
	if err == nil {
		return runID, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("register ingest run: %w", err)
	}

	// Already registered (ON CONFLICT DO NOTHING returned no rows).
	var status string
	if err := q.QueryRow(ctx, lookupIngestRun, sha).Scan(&runID, &status); err != nil {
		return 0, false, fmt.Errorf("lookup existing ingest run: %w", err)
	}
	if !force && status == RunStaged {
		return runID, true, nil
	}
	if _, err := q.Exec(ctx, resetIngestRun, runID, batchID); err != nil {
		return 0, false, fmt.Errorf("reset ingest run: %w", err)
	}
	return runID, false, nil
}

const updateRunStatus = `UPDATE staging.ingest_runs SET status = $2, updated_at = now() WHERE ingest_run_id = $1`

// UpdateStatus updates an ingest run's status.
func UpdateStatus(ctx context.Context, q db.Querier, runID int64, status string) error {
	_, err := q.Exec(ctx, updateRunStatus, runID, status)
	return err
}
