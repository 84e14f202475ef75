package promote

import (
	"context"
	"time"

	"github.com/sigls/facload/internal/model"
	"github.com/sigls/facload/internal/store"
)

// Reprocess re-runs doctor and specialty reconciliation for the validated
// records already linked to a facility, then re-derives its specialty
// set. Facility core fields are left alone. Typically run after new
// specialty mappings have been curated.
func (s *Service) Reprocess(ctx context.Context, facilityID int64) (*model.ReprocessResult, error) {
	start := time.Now()

	res := &model.ReprocessResult{FacilityID: facilityID}
	err := s.inTx(ctx, "reprocess", func(tx store.Tx) error {
		fac, err := tx.FindFacility(ctx, facilityID)
		if err != nil {
			return err
		}
		if fac == nil {
			return ErrFacilityNotFound
		}
		if err := tx.LockGroup(ctx, fac.SourceRawName); err != nil {
			return err
		}

		records, err := tx.FindLinkedRecords(ctx, facilityID)
		if err != nil {
			return err
		}
		links, err := s.reconcileDoctors(ctx, tx, facilityID, records)
		if err != nil {
			return err
		}
		sync, err := tx.SyncFacilitySpecialties(ctx, facilityID)
		if err != nil {
			return err
		}

		res.RecordsScanned = len(records)
		res.DoctorsProcessed = links.Doctors
		res.SpecialtiesLinked = links.Specialties
		res.SpecialtiesUnmapped = links.Unmapped
		res.SpecialtiesHidden = links.Hidden
		res.Sync = sync
		return nil
	})
	if err != nil {
		return nil, &OpError{Op: "reprocess facility", StagingID: facilityID, Err: err}
	}
	res.Duration = time.Since(start)

	s.log.Info().
		Int64("facility_id", facilityID).
		Int("records", res.RecordsScanned).
		Int("doctors", res.DoctorsProcessed).
		Int("specialties_linked", res.SpecialtiesLinked).
		Int("specialties_unmapped", res.SpecialtiesUnmapped).
		Int64("links_added", res.Sync.Added).
		Int64("links_removed", res.Sync.Removed).
		Str("duration", res.Duration.String()).
		Msg("facility reprocessed")

	return res, nil
}

// RecomputeAll re-derives the specialty set of every active facility, one
// short transaction per facility.
func (s *Service) RecomputeAll(ctx context.Context) (*model.RecomputeSummary, error) {
	start := time.Now()

	ids, err := s.store.ListActiveFacilityIDs(ctx)
	if err != nil {
		return nil, err
	}

	sum := &model.RecomputeSummary{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		var sync model.SpecialtySync
		err := s.inTx(ctx, "recompute", func(tx store.Tx) error {
			var err error
			sync, err = tx.SyncFacilitySpecialties(ctx, id)
			return err
		})
		if err != nil {
			return sum, &OpError{Op: "recompute facility", StagingID: id, Err: err}
		}

		sum.FacilitiesScanned++
		if sync.Added > 0 || sync.Removed > 0 {
			sum.FacilitiesChanged++
			s.log.Debug().
				Int64("facility_id", id).
				Int64("added", sync.Added).
				Int64("removed", sync.Removed).
				Msg("facility specialties changed")
		}
		sum.LinksAdded += sync.Added
		sum.LinksRemoved += sync.Removed
	}
	sum.Duration = time.Since(start)

	s.log.Info().
		Int("facilities", sum.FacilitiesScanned).
		Int("changed", sum.FacilitiesChanged).
		Int64("links_added", sum.LinksAdded).
		Int64("links_removed", sum.LinksRemoved).
		Str("duration", sum.Duration.String()).
		Msg("specialty recompute complete")

	return sum, nil
}
