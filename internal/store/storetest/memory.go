// Package storetest provides an in-memory store.Store for tests. InTx
// serializes transactions behind one mutex and restores a snapshot when
// the callback fails, so tests observe the same all-or-nothing behavior
// as the PostgreSQL store.
package storetest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sigls/facload/internal/model"
	"github.com/sigls/facload/internal/store"
)

type pair [2]int64

type state struct {
	records             map[int64]model.StagingRecord
	facilities          map[int64]model.Facility
	doctors             map[int64]model.Doctor
	specialties         map[int64]model.Specialty
	mappings            map[string]model.SpecialtyMapping
	facilityDoctors     map[pair]bool
	doctorSpecialties   map[pair]bool
	facilitySpecialties map[pair]bool
	lockedGroups        []string
	nextID              int64
}

func newState() *state {
	return &state{
		records:             map[int64]model.StagingRecord{},
		facilities:          map[int64]model.Facility{},
		doctors:             map[int64]model.Doctor{},
		specialties:         map[int64]model.Specialty{},
		mappings:            map[string]model.SpecialtyMapping{},
		facilityDoctors:     map[pair]bool{},
		doctorSpecialties:   map[pair]bool{},
		facilitySpecialties: map[pair]bool{},
	}
}

// clone copies every map. Stored structs are replaced, never mutated in
// place, so copying values is enough.
func (s *state) clone() *state {
	return &state{
		records:             maps.Clone(s.records),
		facilities:          maps.Clone(s.facilities),
		doctors:             maps.Clone(s.doctors),
		specialties:         maps.Clone(s.specialties),
		mappings:            maps.Clone(s.mappings),
		facilityDoctors:     maps.Clone(s.facilityDoctors),
		doctorSpecialties:   maps.Clone(s.doctorSpecialties),
		facilitySpecialties: maps.Clone(s.facilitySpecialties),
		lockedGroups:        slices.Clone(s.lockedGroups),
		nextID:              s.nextID,
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Memory is an in-memory store.Store. Direct (non-InTx) calls are not
// synchronized with running transactions.
type Memory struct {
	*memTx
	mu sync.Mutex
	st *state

	// Fail, when set, is consulted before every write; a non-nil return
	// aborts that write with the given error.
	Fail func(op string) error
}

// New returns an empty Memory store.
func New() *Memory {
	m := &Memory{st: newState()}
	m.memTx = &memTx{m: m}
	return m
}

var _ store.Store = (*Memory)(nil)

// InTx runs fn with exclusive access, rolling back on error.
func (m *Memory) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snap := m.st.clone()
	if err := fn(&memTx{m: m}); err != nil {
		*m.st = *snap
		return err
	}
	return nil
}

// ---------- seeding and inspection ----------

// AddRecord stores r with a fresh id (status defaults to pending) and
// returns the id.
func (m *Memory) AddRecord(r model.StagingRecord) int64 {
	r.ID = m.st.id()
	if r.Status == "" {
		r.Status = model.StatusPending
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.st.records[r.ID] = r
	return r.ID
}

// AddSpecialty stores a canonical specialty and returns its id.
func (m *Memory) AddSpecialty(name string, active, visible bool) int64 {
	id := m.st.id()
	m.st.specialties[id] = model.Specialty{ID: id, Name: name, Active: active, VisibleToUser: visible}
	return id
}

// AddMapping maps rawText to specialtyID.
func (m *Memory) AddMapping(rawText string, specialtyID int64) {
	m.st.mappings[rawText] = model.SpecialtyMapping{ID: m.st.id(), RawText: rawText, SpecialtyID: specialtyID}
}

// AddDoctorSpecialty links a doctor to a specialty directly.
func (m *Memory) AddDoctorSpecialty(doctorID, specialtyID int64) {
	m.st.doctorSpecialties[pair{doctorID, specialtyID}] = true
}

// AddFacilitySpecialty links a facility to a specialty directly.
func (m *Memory) AddFacilitySpecialty(facilityID, specialtyID int64) {
	m.st.facilitySpecialties[pair{facilityID, specialtyID}] = true
}

// SetSpecialtyFlags updates a specialty's active and visible flags.
func (m *Memory) SetSpecialtyFlags(id int64, active, visible bool) {
	sp := m.st.specialties[id]
	sp.Active, sp.VisibleToUser = active, visible
	m.st.specialties[id] = sp
}

// Record returns a copy of the record with id.
func (m *Memory) Record(id int64) model.StagingRecord {
	return m.st.records[id]
}

// Facilities returns all facilities ordered by id.
func (m *Memory) Facilities() []model.Facility {
	out := slices.Collect(maps.Values(m.st.facilities))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Doctors returns all doctors ordered by id.
func (m *Memory) Doctors() []model.Doctor {
	out := slices.Collect(maps.Values(m.st.doctors))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FacilityDoctorIDs returns the doctor ids linked to a facility, sorted.
func (m *Memory) FacilityDoctorIDs(facilityID int64) []int64 {
	return rightIDs(m.st.facilityDoctors, facilityID)
}

// DoctorSpecialtyIDs returns the specialty ids linked to a doctor, sorted.
func (m *Memory) DoctorSpecialtyIDs(doctorID int64) []int64 {
	return rightIDs(m.st.doctorSpecialties, doctorID)
}

// FacilitySpecialtyIDs returns the specialty ids linked to a facility, sorted.
func (m *Memory) FacilitySpecialtyIDs(facilityID int64) []int64 {
	return rightIDs(m.st.facilitySpecialties, facilityID)
}

// LockedGroups returns the group keys locked by committed transactions.
func (m *Memory) LockedGroups() []string {
	return slices.Clone(m.st.lockedGroups)
}

func rightIDs(links map[pair]bool, left int64) []int64 {
	var out []int64
	for p := range links {
		if p[0] == left {
			out = append(out, p[1])
		}
	}
	slices.Sort(out)
	return out
}

// ---------- store.Tx ----------

type memTx struct {
	m *Memory
}

func (t *memTx) st() *state { return t.m.st }

func (t *memTx) fail(op string) error {
	if t.m.Fail == nil {
		return nil
	}
	if err := t.m.Fail(op); err != nil {
		return fmt.Errorf("storetest: %s: %w", op, err)
	}
	return nil
}

func (t *memTx) FindRecord(_ context.Context, id int64) (*model.StagingRecord, error) {
	r, ok := t.st().records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (t *memTx) FindGroup(_ context.Context, groupKey string) ([]model.StagingRecord, error) {
	return t.filterRecords(func(r model.StagingRecord) bool {
		return r.RawFacilityName != nil && *r.RawFacilityName == groupKey
	}), nil
}

func (t *memTx) FindLinkedRecords(_ context.Context, facilityID int64) ([]model.StagingRecord, error) {
	return t.filterRecords(func(r model.StagingRecord) bool {
		return r.Status == model.StatusValidated && r.LinkedFacilityID != nil && *r.LinkedFacilityID == facilityID
	}), nil
}

func (t *memTx) filterRecords(keep func(model.StagingRecord) bool) []model.StagingRecord {
	var out []model.StagingRecord
	for _, r := range t.st().records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memTx) ListRecords(_ context.Context, f model.RecordFilter) ([]model.StagingRecord, int64, error) {
	all := t.filterRecords(func(r model.StagingRecord) bool {
		return f.Status == "" || r.Status == f.Status
	})
	slices.Reverse(all)
	total := int64(len(all))

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	end := min(f.Offset+limit, len(all))
	return all[f.Offset:end], total, nil
}

func (t *memTx) UpdateRecord(_ context.Context, id int64, u model.StagingUpdate) (int64, error) {
	if err := t.fail("update_record"); err != nil {
		return 0, err
	}
	r, ok := t.st().records[id]
	if !ok {
		return 0, nil
	}
	u.Apply(&r)
	r.UpdatedAt = time.Now()
	t.st().records[id] = r
	return 1, nil
}

func (t *memTx) UpdateRecords(_ context.Context, ids []int64, u model.StagingUpdate) (int64, error) {
	if err := t.fail("update_records"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		r, ok := t.st().records[id]
		if !ok {
			continue
		}
		u.Apply(&r)
		r.UpdatedAt = time.Now()
		t.st().records[id] = r
		n++
	}
	return n, nil
}

func (t *memTx) UpdateGroup(_ context.Context, groupKey string, u model.StagingUpdate) (int64, error) {
	if err := t.fail("update_group"); err != nil {
		return 0, err
	}
	var n int64
	for id, r := range t.st().records {
		if r.RawFacilityName == nil || *r.RawFacilityName != groupKey {
			continue
		}
		u.Apply(&r)
		r.UpdatedAt = time.Now()
		t.st().records[id] = r
		n++
	}
	return n, nil
}

func (t *memTx) LockGroup(_ context.Context, groupKey string) error {
	t.st().lockedGroups = append(t.st().lockedGroups, groupKey)
	return nil
}

func (t *memTx) UpsertFacility(_ context.Context, sourceOriginID string, f model.FacilityFields) (*model.Facility, error) {
	if err := t.fail("upsert_facility"); err != nil {
		return nil, err
	}
	lat, lon := f.Latitude, f.Longitude
	for id, fac := range t.st().facilities {
		if fac.SourceOriginID != sourceOriginID {
			continue
		}
		if fac.SourceRawName != f.SourceRawName {
			return nil, fmt.Errorf("storetest: upsert facility %s: %w", sourceOriginID, store.ErrOriginCollision)
		}
		fac.Name, fac.Address, fac.Latitude, fac.Longitude = f.Name, f.Address, &lat, &lon
		fac.ImageURL, fac.IconURL = f.ImageURL, f.IconURL
		fac.UpdatedAt = time.Now()
		t.st().facilities[id] = fac
		return &fac, nil
	}

	now := time.Now()
	fac := model.Facility{
		ID:             t.st().id(),
		Name:           f.Name,
		Address:        f.Address,
		Latitude:       &lat,
		Longitude:      &lon,
		SourceOriginID: sourceOriginID,
		SourceRawName:  f.SourceRawName,
		Active:         true,
		ImageURL:       f.ImageURL,
		IconURL:        f.IconURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	t.st().facilities[fac.ID] = fac
	return &fac, nil
}

func (t *memTx) FindFacility(_ context.Context, id int64) (*model.Facility, error) {
	fac, ok := t.st().facilities[id]
	if !ok {
		return nil, nil
	}
	return &fac, nil
}

func (t *memTx) ListActiveFacilityIDs(_ context.Context) ([]int64, error) {
	var ids []int64
	for id, fac := range t.st().facilities {
		if fac.Active {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (t *memTx) FindDoctorByName(_ context.Context, name string) (*model.Doctor, error) {
	for _, d := range t.st().doctors {
		if d.Name == name {
			return &d, nil
		}
	}
	return nil, nil
}

func (t *memTx) UpsertDoctor(ctx context.Context, name, sourceOriginID string) (*model.Doctor, error) {
	if err := t.fail("upsert_doctor"); err != nil {
		return nil, err
	}
	if d, _ := t.FindDoctorByName(ctx, name); d != nil {
		return d, nil
	}
	for _, d := range t.st().doctors {
		if d.SourceOriginID == sourceOriginID {
			return nil, fmt.Errorf("storetest: upsert doctor %s: %w", sourceOriginID, store.ErrOriginCollision)
		}
	}
	d := model.Doctor{ID: t.st().id(), Name: name, SourceOriginID: sourceOriginID, Active: true}
	t.st().doctors[d.ID] = d
	return &d, nil
}

func (t *memTx) LinkFacilityDoctor(_ context.Context, facilityID, doctorID int64) (bool, error) {
	return t.link("link_facility_doctor", t.st().facilityDoctors, facilityID, doctorID)
}

func (t *memTx) LinkDoctorSpecialty(_ context.Context, doctorID, specialtyID int64) (bool, error) {
	return t.link("link_doctor_specialty", t.st().doctorSpecialties, doctorID, specialtyID)
}

func (t *memTx) LinkFacilitySpecialty(_ context.Context, facilityID, specialtyID int64) (bool, error) {
	return t.link("link_facility_specialty", t.st().facilitySpecialties, facilityID, specialtyID)
}

func (t *memTx) link(op string, links map[pair]bool, left, right int64) (bool, error) {
	if err := t.fail(op); err != nil {
		return false, err
	}
	p := pair{left, right}
	if links[p] {
		return false, nil
	}
	links[p] = true
	return true, nil
}

func (t *memTx) FindSpecialtyMapping(_ context.Context, rawText string) (*model.SpecialtyMapping, error) {
	m, ok := t.st().mappings[rawText]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (t *memTx) FindSpecialty(_ context.Context, id int64) (*model.Specialty, error) {
	sp, ok := t.st().specialties[id]
	if !ok {
		return nil, nil
	}
	return &sp, nil
}

func (t *memTx) FacilitySpecialties(_ context.Context, facilityID int64) ([]model.Specialty, error) {
	var out []model.Specialty
	for _, id := range rightIDs(t.st().facilitySpecialties, facilityID) {
		out = append(out, t.st().specialties[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memTx) SyncFacilitySpecialties(_ context.Context, facilityID int64) (model.SpecialtySync, error) {
	if err := t.fail("sync_facility_specialties"); err != nil {
		return model.SpecialtySync{}, err
	}
	st := t.st()
	derived := map[int64]bool{}
	for _, doctorID := range rightIDs(st.facilityDoctors, facilityID) {
		for _, specID := range rightIDs(st.doctorSpecialties, doctorID) {
			if sp := st.specialties[specID]; sp.Listable() {
				derived[specID] = true
			}
		}
	}

	var sync model.SpecialtySync
	for _, specID := range rightIDs(st.facilitySpecialties, facilityID) {
		if !derived[specID] {
			delete(st.facilitySpecialties, pair{facilityID, specID})
			sync.Removed++
		}
	}
	for specID := range derived {
		p := pair{facilityID, specID}
		if !st.facilitySpecialties[p] {
			st.facilitySpecialties[p] = true
			sync.Added++
		}
	}
	sync.Total = int64(len(derived))
	return sync, nil
}
