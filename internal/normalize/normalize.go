package normalize

import (
	"github.com/sigls/facload/internal/model"
)

// ToStagingRecord converts a raw row whose source key has already been
// normalized into a pending staging record with cleaned free-text fields.
func ToStagingRecord(row *model.RawRow, sourceKey string, ingestRunID *int64) *model.StagingRecord {
	return &model.StagingRecord{
		IngestRunID:      ingestRunID,
		SourceKey:        sourceKey,
		RawFacilityName:  CleanText(row.FacilityName),
		RawDoctorName:    CleanText(row.DoctorName),
		RawSpecialtyName: CleanText(row.SpecialtyName),
		Status:           model.StatusPending,
	}
}
