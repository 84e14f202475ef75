package promote

import (
	"context"
	"time"

	"github.com/sigls/facload/internal/model"
	"github.com/sigls/facload/internal/store"
)

// Enrich applies manual enrichment to every staging record sharing the
// target record's group key, keeping a group's details consistent ahead
// of promotion. A record without a facility name is updated alone.
func (s *Service) Enrich(ctx context.Context, stagingID int64, e model.Enrichment) (*model.EnrichResult, error) {
	start := time.Now()

	res := &model.EnrichResult{}
	err := s.inTx(ctx, "enrich", func(tx store.Tx) error {
		rec, err := tx.FindRecord(ctx, stagingID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrRecordNotFound
		}
		if e.IsEmpty() {
			return nil
		}

		u := model.StagingUpdate{Enrichment: e}
		key, ok := GroupKey(rec)
		if !ok {
			n, err := tx.UpdateRecord(ctx, stagingID, u)
			res.UpdatedCount = n
			return err
		}
		if err := tx.LockGroup(ctx, key); err != nil {
			return err
		}
		n, err := tx.UpdateGroup(ctx, key, u)
		res.GroupKey, res.UpdatedCount = key, n
		return err
	})
	if err != nil {
		return nil, &OpError{Op: "enrich", StagingID: stagingID, Err: err}
	}

	s.log.Info().
		Int64("staging_id", stagingID).
		Str("group", res.GroupKey).
		Int64("records_updated", res.UpdatedCount).
		Strs("fields", e.Fields()).
		Dur("duration", time.Since(start)).
		Msg("staging records enriched")

	return res, nil
}

// SetStatus moves one record to pending, error, or ignored. Validated is
// reachable only through Promote. The facility link is kept, so a record
// reset to pending re-promotes onto the same facility.
func (s *Service) SetStatus(ctx context.Context, stagingID int64, status model.Status) error {
	if !status.Valid() || status == model.StatusValidated {
		return &OpError{Op: "set status", StagingID: stagingID, Err: ErrInvalidStatus}
	}

	var previous model.Status
	err := s.inTx(ctx, "set status", func(tx store.Tx) error {
		rec, err := tx.FindRecord(ctx, stagingID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrRecordNotFound
		}
		previous = rec.Status
		_, err = tx.UpdateRecord(ctx, stagingID, model.StagingUpdate{Status: &status})
		return err
	})
	if err != nil {
		return &OpError{Op: "set status", StagingID: stagingID, Err: err}
	}

	s.log.Info().
		Int64("staging_id", stagingID).
		Str("from", string(previous)).
		Str("to", string(status)).
		Msg("staging record status updated")
	return nil
}
