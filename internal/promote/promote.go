package promote

import (
	"context"
	"fmt"
	"time"

	"github.com/sigls/facload/internal/model"
	"github.com/sigls/facload/internal/normalize"
	"github.com/sigls/facload/internal/store"
)

// Promote reconciles the group anchored at stagingID into the production
// dataset: it upserts the group's facility, its distinct doctors and their
// resolvable specialties, re-derives the facility's specialty set, and
// marks the group records it read validated and linked to the facility.
// Everything happens in one transaction; on error nothing is changed.
func (s *Service) Promote(ctx context.Context, stagingID int64) (*model.PromotionResult, error) {
	start := time.Now()

	var res *model.PromotionResult
	err := s.inTx(ctx, "promote", func(tx store.Tx) error {
		r, err := s.promoteGroup(ctx, tx, stagingID)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, &OpError{Op: "promote", StagingID: stagingID, Err: err}
	}
	res.Duration = time.Since(start)

	s.log.Info().
		Int64("staging_id", stagingID).
		Int64("facility_id", res.Facility.ID).
		Str("source_origin_id", res.Facility.SourceOriginID).
		Int("records_grouped", res.GroupSize).
		Int("doctors", res.DoctorsProcessed).
		Int("specialties_linked", res.SpecialtiesLinked).
		Int("specialties_unmapped", res.SpecialtiesUnmapped).
		Int("specialties_hidden", res.SpecialtiesHidden).
		Int64("facility_specialties", res.FacilitySpecialties).
		Str("duration", res.Duration.String()).
		Msg("group promoted")

	return res, nil
}

func (s *Service) promoteGroup(ctx context.Context, tx store.Tx, stagingID int64) (*model.PromotionResult, error) {
	anchor, err := tx.FindRecord(ctx, stagingID)
	if err != nil {
		return nil, err
	}
	if anchor == nil {
		return nil, ErrRecordNotFound
	}
	key, ok := GroupKey(anchor)
	if !ok {
		return nil, ErrNoGroupKey
	}

	// Re-read under the group lock: a promotion that won the race has
	// already marked the anchor validated.
	if err := tx.LockGroup(ctx, key); err != nil {
		return nil, err
	}
	if anchor, err = tx.FindRecord(ctx, stagingID); err != nil {
		return nil, err
	}
	if anchor == nil {
		return nil, ErrRecordNotFound
	}
	if anchor.Status == model.StatusValidated {
		return nil, ErrAlreadyPromoted
	}
	if !anchor.HasGeocode() {
		return nil, ErrMissingGeocode
	}

	group, err := tx.FindGroup(ctx, key)
	if err != nil {
		return nil, err
	}

	facility, err := tx.UpsertFacility(ctx, normalize.FacilityOriginID(key), s.facilityFields(anchor, key))
	if err != nil {
		return nil, err
	}

	links, err := s.reconcileDoctors(ctx, tx, facility.ID, group)
	if err != nil {
		return nil, err
	}

	sync, err := tx.SyncFacilitySpecialties(ctx, facility.ID)
	if err != nil {
		return nil, err
	}

	// Mark only the rows reconciled above. Stage does not take the group
	// lock, so a sibling committed since FindGroup stays pending.
	ids := make([]int64, len(group))
	for i, r := range group {
		ids[i] = r.ID
	}
	validated := model.StatusValidated
	updated, err := tx.UpdateRecords(ctx, ids, model.StagingUpdate{
		Status:           &validated,
		LinkedFacilityID: &facility.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("mark group validated: %w", err)
	}

	return &model.PromotionResult{
		Facility:            facility,
		GroupKey:            key,
		GroupSize:           len(group),
		RecordsUpdated:      updated,
		DoctorsProcessed:    links.Doctors,
		SpecialtiesLinked:   links.Specialties,
		SpecialtiesUnmapped: links.Unmapped,
		SpecialtiesHidden:   links.Hidden,
		FacilitySpecialties: sync.Total,
	}, nil
}

// facilityFields builds the facility's mutable fields from the anchor's
// enrichment. The name prefers the display name, then the raw name.
func (s *Service) facilityFields(anchor *model.StagingRecord, key string) model.FacilityFields {
	name := normalize.Deref(anchor.DisplayName)
	if name == "" {
		name = normalize.Deref(anchor.RawFacilityName)
	}
	if name == "" {
		name = s.opts.FallbackFacilityName
	}
	return model.FacilityFields{
		Name:          name,
		Address:       anchor.Address,
		Latitude:      *anchor.Latitude,
		Longitude:     *anchor.Longitude,
		ImageURL:      anchor.ImageURL,
		IconURL:       anchor.IconURL,
		SourceRawName: key,
	}
}
