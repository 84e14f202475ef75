package promote

import (
	"github.com/sigls/facload/internal/model"
)

// GroupKey returns the promotion unit of a staging record: its cleaned raw
// facility name, compared by exact equality. ok is false when the record
// has no facility name and therefore belongs to no group.
func GroupKey(r *model.StagingRecord) (key string, ok bool) {
	if r.RawFacilityName == nil || *r.RawFacilityName == "" {
		return "", false
	}
	return *r.RawFacilityName, true
}
