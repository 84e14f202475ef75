package promote

import (
	"context"
	"fmt"

	"github.com/sigls/facload/internal/model"
	"github.com/sigls/facload/internal/normalize"
	"github.com/sigls/facload/internal/store"
)

// doctorEntry is one distinct doctor within a group.
type doctorEntry struct {
	Name         string
	RawSpecialty string
}

// collectDoctors returns one entry per distinct doctor in group, keyed by
// normalize.DoctorKey. Records are visited in the given order (the store
// returns groups in staging id order) and the first record naming a
// doctor decides that doctor's raw specialty.
func collectDoctors(group []model.StagingRecord) []doctorEntry {
	seen := make(map[string]struct{}, len(group))
	var out []doctorEntry
	for i := range group {
		name := normalize.Deref(group[i].RawDoctorName)
		if name == "" {
			continue
		}
		key := normalize.DoctorKey(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, doctorEntry{
			Name:         name,
			RawSpecialty: normalize.Deref(group[i].RawSpecialtyName),
		})
	}
	return out
}

type resolution int

const (
	resolved resolution = iota
	unmapped
	hidden
)

// resolveSpecialty looks a raw specialty up through the curated mappings.
// Mappings pointing at a missing specialty count as unmapped.
func resolveSpecialty(ctx context.Context, tx store.Tx, raw string) (*model.Specialty, resolution, error) {
	m, err := tx.FindSpecialtyMapping(ctx, raw)
	if err != nil {
		return nil, unmapped, err
	}
	if m == nil {
		return nil, unmapped, nil
	}
	sp, err := tx.FindSpecialty(ctx, m.SpecialtyID)
	if err != nil {
		return nil, unmapped, err
	}
	if sp == nil {
		return nil, unmapped, nil
	}
	if !sp.Listable() {
		return sp, hidden, nil
	}
	return sp, resolved, nil
}

// linkOutcome counts what reconcileDoctors did.
type linkOutcome struct {
	Doctors     int
	Specialties int
	Unmapped    int
	Hidden      int
}

// reconcileDoctors upserts every distinct doctor of a group, links them to
// the facility, and links their resolvable specialties to both the doctor
// and the facility.
func (s *Service) reconcileDoctors(ctx context.Context, tx store.Tx, facilityID int64, group []model.StagingRecord) (linkOutcome, error) {
	var out linkOutcome
	linked := make(map[int64]struct{})

	for _, d := range collectDoctors(group) {
		doc, err := tx.FindDoctorByName(ctx, d.Name)
		if err != nil {
			return out, fmt.Errorf("find doctor: %w", err)
		}
		if doc == nil {
			doc, err = tx.UpsertDoctor(ctx, d.Name, normalize.DoctorOriginID(d.Name))
			if err != nil {
				return out, fmt.Errorf("upsert doctor: %w", err)
			}
		}
		if _, err := tx.LinkFacilityDoctor(ctx, facilityID, doc.ID); err != nil {
			return out, fmt.Errorf("link facility doctor: %w", err)
		}
		out.Doctors++

		if d.RawSpecialty == "" {
			continue
		}
		sp, res, err := resolveSpecialty(ctx, tx, d.RawSpecialty)
		if err != nil {
			return out, fmt.Errorf("resolve specialty: %w", err)
		}
		switch res {
		case unmapped:
			out.Unmapped++
			s.log.Warn().Str("doctor", d.Name).Str("raw_specialty", d.RawSpecialty).Msg("specialty has no mapping, skipped")
			continue
		case hidden:
			out.Hidden++
			s.log.Warn().Str("doctor", d.Name).Int64("specialty_id", sp.ID).Msg("specialty inactive or hidden, skipped")
			continue
		}

		if _, err := tx.LinkDoctorSpecialty(ctx, doc.ID, sp.ID); err != nil {
			return out, fmt.Errorf("link doctor specialty: %w", err)
		}
		if _, err := tx.LinkFacilitySpecialty(ctx, facilityID, sp.ID); err != nil {
			return out, fmt.Errorf("link facility specialty: %w", err)
		}
		linked[sp.ID] = struct{}{}
	}

	out.Specialties = len(linked)
	return out, nil
}
