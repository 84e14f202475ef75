// Package promote reconciles groups of staging records into canonical
// facilities, doctors, and specialty links.
package promote

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sigls/facload/internal/config"
	"github.com/sigls/facload/internal/store"
)

// Options tunes a Service.
type Options struct {
	// ConflictRetries is how many times a transaction that failed with a
	// store conflict is re-run before giving up.
	ConflictRetries int
	// FallbackFacilityName names a facility whose group has neither a
	// display name nor a raw name.
	FallbackFacilityName string
}

// OptionsFromConfig extracts Service options from the runtime config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ConflictRetries:      cfg.ConflictRetries,
		FallbackFacilityName: cfg.FacilityFallbackName,
	}
}

// Service runs promotion, enrichment, and specialty maintenance against a
// store.
type Service struct {
	store store.Store
	log   zerolog.Logger
	opts  Options
}

// NewService creates a Service.
func NewService(s store.Store, log zerolog.Logger, opts Options) *Service {
	if opts.FallbackFacilityName == "" {
		opts.FallbackFacilityName = config.DefaultFacilityFallbackName
	}
	if opts.ConflictRetries < 0 {
		opts.ConflictRetries = 0
	}
	return &Service{store: s, log: log, opts: opts}
}

// inTx runs fn in a transaction, re-running it while the store reports a
// conflict and retries remain.
func (s *Service) inTx(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt <= s.opts.ConflictRetries; attempt++ {
		if attempt > 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("retrying after store conflict")
		}
		err = s.store.InTx(ctx, fn)
		if err == nil || !errors.Is(err, store.ErrConflict) {
			return translate(err)
		}
	}
	return fmt.Errorf("%w: %w", ErrStoreConflict, err)
}

// translate maps store sentinels onto the package's error taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrOriginCollision) && !errors.Is(err, ErrOriginCollision):
		return fmt.Errorf("%w: %w", ErrOriginCollision, err)
	}
	return err
}
