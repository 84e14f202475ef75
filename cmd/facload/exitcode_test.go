package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sigls/facload/internal/exitcode"
	"github.com/sigls/facload/internal/promote"
)

func TestExitCodeFor(t *testing.T) {
	wrap := func(err error) error {
		return &promote.OpError{Op: "promote", StagingID: 1, Err: err}
	}
	tests := []struct {
		err  error
		want int
	}{
		{wrap(promote.ErrRecordNotFound), exitcode.NotFound},
		{wrap(promote.ErrFacilityNotFound), exitcode.NotFound},
		{wrap(fmt.Errorf("%w: boom", promote.ErrStoreConflict)), exitcode.Conflict},
		{wrap(promote.ErrOriginCollision), exitcode.Conflict},
		{wrap(promote.ErrAlreadyPromoted), exitcode.PreconditionFailed},
		{wrap(promote.ErrMissingGeocode), exitcode.PreconditionFailed},
		{wrap(promote.ErrNoGroupKey), exitcode.PreconditionFailed},
		{wrap(promote.ErrInvalidStatus), exitcode.UsageError},
		{errors.New("connection reset"), exitcode.TransformError},
	}
	for _, tt := range tests {
		if got := exitCodeFor(tt.err); got != tt.want {
			t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
