package promote

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound   = errors.New("staging record not found")
	ErrAlreadyPromoted  = errors.New("staging record already promoted")
	ErrMissingGeocode   = errors.New("latitude and longitude are required for promotion")
	ErrStoreConflict    = errors.New("concurrent modification detected")
	ErrNoGroupKey       = errors.New("staging record has no raw facility name to group by")
	ErrOriginCollision  = errors.New("source origin id already belongs to a different name")
	ErrInvalidStatus    = errors.New("invalid status transition")
	ErrFacilityNotFound = errors.New("facility not found")
)

// OpError wraps a failed operation with the staging record (or facility)
// it was invoked on.
type OpError struct {
	Op        string
	StagingID int64
	Err       error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Op, e.StagingID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
