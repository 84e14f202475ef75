package promote

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigls/facload/internal/model"
	"github.com/sigls/facload/internal/normalize"
	"github.com/sigls/facload/internal/store"
	"github.com/sigls/facload/internal/store/storetest"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func newTestService(m *storetest.Memory) *Service {
	return NewService(m, zerolog.Nop(), Options{ConflictRetries: 2})
}

func row(facility, doctor, specialty string) model.StagingRecord {
	r := model.StagingRecord{SourceKey: facility + doctor + specialty}
	if facility != "" {
		r.RawFacilityName = strPtr(facility)
	}
	if doctor != "" {
		r.RawDoctorName = strPtr(doctor)
	}
	if specialty != "" {
		r.RawSpecialtyName = strPtr(specialty)
	}
	return r
}

func geocoded(r model.StagingRecord) model.StagingRecord {
	r.Latitude = floatPtr(-23.55)
	r.Longitude = floatPtr(-46.63)
	return r
}

func TestPromote_Scenario(t *testing.T) {
	m := storetest.New()
	clinico := m.AddSpecialty("Clínica Geral", true, true)
	pediatria := m.AddSpecialty("Pediatria", true, true)
	m.AddMapping("CLINICO GERAL", clinico)
	m.AddMapping("PEDIATRIA", pediatria)

	anchor := m.AddRecord(geocoded(row("UBS CENTRAL", "DR. ANA SOUZA", "CLINICO GERAL")))
	sibling := m.AddRecord(row("UBS CENTRAL", "DR. ANA SOUZA", "PEDIATRIA"))

	res, err := newTestService(m).Promote(context.Background(), anchor)
	require.NoError(t, err)

	assert.Equal(t, 2, res.GroupSize)
	assert.Equal(t, 1, res.DoctorsProcessed)
	assert.Equal(t, 1, res.SpecialtiesLinked)
	assert.Equal(t, int64(2), res.RecordsUpdated)
	assert.Equal(t, "UBS CENTRAL", res.Facility.Name)
	assert.Equal(t, normalize.FacilityOriginID("UBS CENTRAL"), res.Facility.SourceOriginID)

	require.Len(t, m.Facilities(), 1)
	doctors := m.Doctors()
	require.Len(t, doctors, 1)
	assert.Equal(t, "DR. ANA SOUZA", doctors[0].Name)
	assert.Equal(t, []int64{clinico}, m.DoctorSpecialtyIDs(doctors[0].ID))
	assert.Equal(t, []int64{clinico}, m.FacilitySpecialtyIDs(res.Facility.ID))

	for _, id := range []int64{anchor, sibling} {
		rec := m.Record(id)
		assert.Equal(t, model.StatusValidated, rec.Status)
		require.NotNil(t, rec.LinkedFacilityID)
		assert.Equal(t, res.Facility.ID, *rec.LinkedFacilityID)
	}
	assert.Equal(t, []string{"UBS CENTRAL"}, m.LockedGroups())
}

func TestPromote_DisplayNameAndEnrichmentFields(t *testing.T) {
	m := storetest.New()
	r := geocoded(row("UBS CENTRAL", "", ""))
	r.DisplayName = strPtr("UBS Central")
	r.Address = strPtr("Rua A, 1")
	r.ImageURL = strPtr("https://img/ubs.png")
	id := m.AddRecord(r)

	res, err := newTestService(m).Promote(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, "UBS Central", res.Facility.Name)
	assert.Equal(t, "Rua A, 1", *res.Facility.Address)
	assert.Equal(t, "https://img/ubs.png", *res.Facility.ImageURL)
	assert.InDelta(t, -23.55, *res.Facility.Latitude, 1e-9)
	assert.Equal(t, 0, res.DoctorsProcessed)
}

func TestPromote_Idempotent(t *testing.T) {
	m := storetest.New()
	svc := newTestService(m)
	ctx := context.Background()

	id := m.AddRecord(geocoded(row("UBS CENTRAL", "DR. ANA SOUZA", "")))
	first, err := svc.Promote(ctx, id)
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(ctx, id, model.StatusPending))
	_, err = svc.Enrich(ctx, id, model.Enrichment{
		DisplayName: strPtr("UBS Central Renovada"),
		Latitude:    floatPtr(-22.9),
	})
	require.NoError(t, err)

	second, err := svc.Promote(ctx, id)
	require.NoError(t, err)

	require.Len(t, m.Facilities(), 1)
	require.Len(t, m.Doctors(), 1)
	assert.Equal(t, first.Facility.ID, second.Facility.ID)
	assert.Equal(t, "UBS Central Renovada", second.Facility.Name)
	assert.InDelta(t, -22.9, *second.Facility.Latitude, 1e-9)
	assert.Len(t, m.FacilityDoctorIDs(first.Facility.ID), 1)
}

func TestPromote_AlreadyPromoted(t *testing.T) {
	m := storetest.New()
	svc := newTestService(m)
	id := m.AddRecord(geocoded(row("UBS CENTRAL", "", "")))

	_, err := svc.Promote(context.Background(), id)
	require.NoError(t, err)

	_, err = svc.Promote(context.Background(), id)
	require.ErrorIs(t, err, ErrAlreadyPromoted)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "promote", opErr.Op)
	assert.Equal(t, id, opErr.StagingID)
}

func TestPromote_SiblingAlreadyPromoted(t *testing.T) {
	m := storetest.New()
	svc := newTestService(m)
	a := m.AddRecord(geocoded(row("UBS CENTRAL", "", "")))
	b := m.AddRecord(row("UBS CENTRAL", "", ""))

	_, err := svc.Promote(context.Background(), a)
	require.NoError(t, err)

	_, err = svc.Promote(context.Background(), b)
	assert.ErrorIs(t, err, ErrAlreadyPromoted)
}

func TestPromote_MissingGeocode(t *testing.T) {
	m := storetest.New()
	r := row("UBS CENTRAL", "DR. ANA SOUZA", "")
	r.Longitude = floatPtr(-46.63)
	id := m.AddRecord(r)

	_, err := newTestService(m).Promote(context.Background(), id)
	require.ErrorIs(t, err, ErrMissingGeocode)

	assert.Equal(t, model.StatusPending, m.Record(id).Status)
	assert.Nil(t, m.Record(id).LinkedFacilityID)
	assert.Empty(t, m.Facilities())
	assert.Empty(t, m.Doctors())
}

func TestPromote_OnlyAnchorGeocodeMatters(t *testing.T) {
	m := storetest.New()
	withGeo := m.AddRecord(geocoded(row("UBS CENTRAL", "", "")))
	withoutGeo := m.AddRecord(row("UBS CENTRAL", "", ""))
	svc := newTestService(m)

	_, err := svc.Promote(context.Background(), withoutGeo)
	require.ErrorIs(t, err, ErrMissingGeocode)

	_, err = svc.Promote(context.Background(), withGeo)
	require.NoError(t, err)
	assert.Equal(t, model.StatusValidated, m.Record(withoutGeo).Status)
}

func TestPromote_NotFound(t *testing.T) {
	_, err := newTestService(storetest.New()).Promote(context.Background(), 42)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestPromote_NoGroupKey(t *testing.T) {
	m := storetest.New()
	id := m.AddRecord(geocoded(row("", "DR. ANA SOUZA", "")))

	_, err := newTestService(m).Promote(context.Background(), id)
	assert.ErrorIs(t, err, ErrNoGroupKey)
	assert.Equal(t, model.StatusPending, m.Record(id).Status)
}

func TestPromote_GroupingInvariant(t *testing.T) {
	m := storetest.New()
	a := m.AddRecord(geocoded(row("UBS CENTRAL", "DR. A", "")))
	b := m.AddRecord(row("UBS CENTRAL", "DR. B", ""))
	other := m.AddRecord(row("UBS CENTRAL.", "DR. C", ""))

	res, err := newTestService(m).Promote(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, *m.Record(a).LinkedFacilityID, *m.Record(b).LinkedFacilityID)
	assert.Equal(t, 2, res.DoctorsProcessed)
	assert.Equal(t, model.StatusPending, m.Record(other).Status)
	assert.Nil(t, m.Record(other).LinkedFacilityID)
}

func TestPromote_DoctorsAreGlobal(t *testing.T) {
	m := storetest.New()
	svc := newTestService(m)
	a := m.AddRecord(geocoded(row("UBS CENTRAL", "DR. ANA SOUZA", "")))
	b := m.AddRecord(geocoded(row("UBS NORTE", "DR. ANA SOUZA", "")))

	fa, err := svc.Promote(context.Background(), a)
	require.NoError(t, err)
	fb, err := svc.Promote(context.Background(), b)
	require.NoError(t, err)

	require.Len(t, m.Doctors(), 1)
	doc := m.Doctors()[0].ID
	assert.Equal(t, []int64{doc}, m.FacilityDoctorIDs(fa.Facility.ID))
	assert.Equal(t, []int64{doc}, m.FacilityDoctorIDs(fb.Facility.ID))
}

func TestPromote_HiddenSpecialtyExcluded(t *testing.T) {
	m := storetest.New()
	visible := m.AddSpecialty("Cardiologia", true, true)
	invisible := m.AddSpecialty("Triagem", true, false)
	m.AddMapping("CARDIOLOGIA", visible)
	m.AddMapping("TRIAGEM", invisible)

	a := m.AddRecord(geocoded(row("UBS CENTRAL", "DR. A", "CARDIOLOGIA")))
	m.AddRecord(row("UBS CENTRAL", "DR. B", "TRIAGEM"))

	res, err := newTestService(m).Promote(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, 1, res.SpecialtiesLinked)
	assert.Equal(t, 1, res.SpecialtiesHidden)
	assert.Equal(t, []int64{visible}, m.FacilitySpecialtyIDs(res.Facility.ID))
}

func TestPromote_SyncRemovesStaleFacilitySpecialty(t *testing.T) {
	m := storetest.New()
	svc := newTestService(m)
	ctx := context.Background()

	cardio := m.AddSpecialty("Cardiologia", true, true)
	m.AddMapping("CARDIOLOGIA", cardio)
	id := m.AddRecord(geocoded(row("UBS CENTRAL", "DR. A", "CARDIOLOGIA")))

	res, err := svc.Promote(ctx, id)
	require.NoError(t, err)

	stale := m.AddSpecialty("Ortopedia", true, true)
	m.AddFacilitySpecialty(res.Facility.ID, stale)

	require.NoError(t, svc.SetStatus(ctx, id, model.StatusPending))
	res, err = svc.Promote(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, []int64{cardio}, m.FacilitySpecialtyIDs(res.Facility.ID))
	assert.Equal(t, int64(1), res.FacilitySpecialties)
}

func TestPromote_UnmappedSpecialtyCounted(t *testing.T) {
	m := storetest.New()
	dangling := m.AddSpecialty("Removida", true, true)
	m.AddMapping("DANGLING", dangling+100)

	a := m.AddRecord(geocoded(row("UBS CENTRAL", "DR. A", "SEM MAPA")))
	m.AddRecord(row("UBS CENTRAL", "DR. B", "DANGLING"))

	res, err := newTestService(m).Promote(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, 2, res.DoctorsProcessed)
	assert.Equal(t, 2, res.SpecialtiesUnmapped)
	assert.Equal(t, 0, res.SpecialtiesLinked)
	assert.Empty(t, m.FacilitySpecialtyIDs(res.Facility.ID))
	assert.Len(t, m.FacilityDoctorIDs(res.Facility.ID), 2)
}

func TestPromote_RollbackOnFailure(t *testing.T) {
	for _, op := range []string{"upsert_doctor", "link_doctor_specialty", "sync_facility_specialties", "update_records"} {
		t.Run(op, func(t *testing.T) {
			m := storetest.New()
			cardio := m.AddSpecialty("Cardiologia", true, true)
			m.AddMapping("CARDIOLOGIA", cardio)
			id := m.AddRecord(geocoded(row("UBS CENTRAL", "DR. A", "CARDIOLOGIA")))

			boom := errors.New("boom")
			m.Fail = func(got string) error {
				if got == op {
					return boom
				}
				return nil
			}

			_, err := newTestService(m).Promote(context.Background(), id)
			require.ErrorIs(t, err, boom)

			assert.Empty(t, m.Facilities())
			assert.Empty(t, m.Doctors())
			assert.Equal(t, model.StatusPending, m.Record(id).Status)
			assert.Nil(t, m.Record(id).LinkedFacilityID)
		})
	}
}

func TestPromote_LateSiblingStaysPending(t *testing.T) {
	m := storetest.New()
	id := m.AddRecord(geocoded(row("UBS CENTRAL", "DR. A", "")))

	// A concurrent ingest commits a sibling after the group was read.
	var late int64
	m.Fail = func(op string) error {
		if op == "upsert_facility" && late == 0 {
			late = m.AddRecord(row("UBS CENTRAL", "DR. NOVO", ""))
		}
		return nil
	}

	res, err := newTestService(m).Promote(context.Background(), id)
	require.NoError(t, err)
	require.NotZero(t, late)

	assert.Equal(t, 1, res.GroupSize)
	assert.Equal(t, int64(1), res.RecordsUpdated)
	require.Len(t, m.Doctors(), 1)
	assert.Equal(t, "DR. A", m.Doctors()[0].Name)
	assert.Len(t, m.FacilityDoctorIDs(res.Facility.ID), 1)

	assert.Equal(t, model.StatusValidated, m.Record(id).Status)
	assert.Equal(t, model.StatusPending, m.Record(late).Status)
	assert.Nil(t, m.Record(late).LinkedFacilityID)
}

func TestPromote_RetriesConflict(t *testing.T) {
	m := storetest.New()
	id := m.AddRecord(geocoded(row("UBS CENTRAL", "", "")))

	failures := 2
	m.Fail = func(op string) error {
		if op == "upsert_facility" && failures > 0 {
			failures--
			return store.ErrConflict
		}
		return nil
	}

	res, err := newTestService(m).Promote(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, failures)
	assert.Equal(t, model.StatusValidated, m.Record(id).Status)
	assert.Len(t, m.Facilities(), 1)
	assert.NotNil(t, res.Facility)
}

func TestPromote_ConflictExhausted(t *testing.T) {
	m := storetest.New()
	id := m.AddRecord(geocoded(row("UBS CENTRAL", "", "")))

	calls := 0
	m.Fail = func(op string) error {
		if op == "upsert_facility" {
			calls++
			return store.ErrConflict
		}
		return nil
	}

	_, err := newTestService(m).Promote(context.Background(), id)
	require.ErrorIs(t, err, ErrStoreConflict)
	assert.Equal(t, 3, calls)
	assert.Equal(t, model.StatusPending, m.Record(id).Status)
}

func TestPromote_OriginCollisionRejected(t *testing.T) {
	m := storetest.New()
	ctx := context.Background()

	require.NoError(t, m.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.UpsertFacility(ctx, normalize.FacilityOriginID("UBS CENTRAL"), model.FacilityFields{
			Name:          "Outra",
			SourceRawName: "OUTRA UNIDADE",
		})
		return err
	}))

	id := m.AddRecord(geocoded(row("UBS CENTRAL", "", "")))
	_, err := newTestService(m).Promote(ctx, id)
	require.ErrorIs(t, err, ErrOriginCollision)

	require.Len(t, m.Facilities(), 1)
	assert.Equal(t, "Outra", m.Facilities()[0].Name)
	assert.Equal(t, model.StatusPending, m.Record(id).Status)
}

func TestCollectDoctors_FirstSeenWins(t *testing.T) {
	group := []model.StagingRecord{
		row("UBS", "DR. ANA SOUZA", "CLINICO GERAL"),
		row("UBS", "", "PEDIATRIA"),
		row("UBS", " dr. ana souza ", "PEDIATRIA"),
		row("UBS", "DR. BRUNO", ""),
	}

	got := collectDoctors(group)
	assert.Equal(t, []doctorEntry{
		{Name: "DR. ANA SOUZA", RawSpecialty: "CLINICO GERAL"},
		{Name: "DR. BRUNO", RawSpecialty: ""},
	}, got)
}

func TestGroupKey(t *testing.T) {
	key, ok := GroupKey(&model.StagingRecord{RawFacilityName: strPtr("UBS CENTRAL")})
	assert.True(t, ok)
	assert.Equal(t, "UBS CENTRAL", key)

	_, ok = GroupKey(&model.StagingRecord{})
	assert.False(t, ok)

	_, ok = GroupKey(&model.StagingRecord{RawFacilityName: strPtr("")})
	assert.False(t, ok)
}
