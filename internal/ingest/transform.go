package ingest

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sigls/facload/internal/model"
	"github.com/sigls/facload/internal/normalize"
)

// TransformResult holds the deduplicated records of one batch and its
// counters.
type TransformResult struct {
	Records  []model.StagingRecord
	Stats    model.TransformStats
	Duration time.Duration
}

// Transform cleans a batch of raw rows and collapses rows sharing a
// normalized source key in a single left-to-right pass. The first row seen
// for a key wins; later rows with that key are dropped without merging.
// Rows whose source key normalizes to nothing are skipped. Output order
// follows first appearance in rows.
func Transform(rows []model.RawRow, ingestRunID *int64, log zerolog.Logger) *TransformResult {
	start := time.Now()

	res := &TransformResult{Records: make([]model.StagingRecord, 0, len(rows))}
	seen := make(map[string]struct{}, len(rows))

	for i := range rows {
		res.Stats.Input++

		key := normalize.NormalizeSourceKey(rows[i].SourceID)
		if key == nil {
			res.Stats.Skipped++
			log.Warn().Int("row", i+1).Str("source_id", rows[i].SourceID).Msg("row skipped: no usable source id")
			continue
		}
		if _, dup := seen[*key]; dup {
			res.Stats.Duplicates++
			log.Debug().Int("row", i+1).Str("source_key", *key).Msg("duplicate source key dropped")
			continue
		}
		seen[*key] = struct{}{}
		res.Records = append(res.Records, *normalize.ToStagingRecord(&rows[i], *key, ingestRunID))
	}

	res.Stats.Output = int64(len(res.Records))
	res.Duration = time.Since(start)

	log.Info().
		Int64("input", res.Stats.Input).
		Int64("output", res.Stats.Output).
		Int64("skipped", res.Stats.Skipped).
		Int64("duplicates", res.Stats.Duplicates).
		Str("duration", res.Duration.String()).
		Msg("transform complete")

	return res
}
