// Package store defines the persistence contract the promotion pipeline
// runs against and its PostgreSQL implementation.
//
// Every multi-step mutation goes through Store.InTx; the Tx handed to the
// callback sees and writes a single transaction, so a failed promotion
// leaves neither staging nor production state partially changed.
package store

import (
	"context"
	"errors"

	"github.com/sigls/facload/internal/model"
)

var (
	// ErrConflict marks a failure caused by a concurrent writer
	// (serialization failure, deadlock, unique race). Retrying the whole
	// transaction may succeed.
	ErrConflict = errors.New("store: concurrent modification")

	// ErrOriginCollision marks an origin id already owned by a different
	// raw name.
	ErrOriginCollision = errors.New("store: source origin id collision")
)

// StagingStore reads and writes staging records. Finders return nil, nil
// when nothing matches.
type StagingStore interface {
	FindRecord(ctx context.Context, id int64) (*model.StagingRecord, error)
	// FindGroup returns every record whose raw facility name equals
	// groupKey, ordered by id.
	FindGroup(ctx context.Context, groupKey string) ([]model.StagingRecord, error)
	// FindLinkedRecords returns the validated records linked to a facility,
	// ordered by id.
	FindLinkedRecords(ctx context.Context, facilityID int64) ([]model.StagingRecord, error)
	ListRecords(ctx context.Context, f model.RecordFilter) ([]model.StagingRecord, int64, error)
	UpdateRecord(ctx context.Context, id int64, u model.StagingUpdate) (int64, error)
	// UpdateRecords touches only ids, so rows staged after they were read
	// are left alone.
	UpdateRecords(ctx context.Context, ids []int64, u model.StagingUpdate) (int64, error)
	UpdateGroup(ctx context.Context, groupKey string, u model.StagingUpdate) (int64, error)
}

// ProductionStore reads and writes canonical entities. Link methods are
// create-if-absent and report whether a row was created.
type ProductionStore interface {
	// LockGroup serializes promotions of one group key until the
	// surrounding transaction ends.
	LockGroup(ctx context.Context, groupKey string) error

	UpsertFacility(ctx context.Context, sourceOriginID string, f model.FacilityFields) (*model.Facility, error)
	FindFacility(ctx context.Context, id int64) (*model.Facility, error)
	ListActiveFacilityIDs(ctx context.Context) ([]int64, error)

	FindDoctorByName(ctx context.Context, name string) (*model.Doctor, error)
	UpsertDoctor(ctx context.Context, name, sourceOriginID string) (*model.Doctor, error)

	LinkFacilityDoctor(ctx context.Context, facilityID, doctorID int64) (bool, error)
	LinkDoctorSpecialty(ctx context.Context, doctorID, specialtyID int64) (bool, error)
	LinkFacilitySpecialty(ctx context.Context, facilityID, specialtyID int64) (bool, error)

	FindSpecialtyMapping(ctx context.Context, rawText string) (*model.SpecialtyMapping, error)
	FindSpecialty(ctx context.Context, id int64) (*model.Specialty, error)
	FacilitySpecialties(ctx context.Context, facilityID int64) ([]model.Specialty, error)

	// SyncFacilitySpecialties makes the facility's specialty set equal to
	// the active, user-visible specialties of its linked doctors.
	SyncFacilitySpecialties(ctx context.Context, facilityID int64) (model.SpecialtySync, error)
}

// Tx is the view of both stores inside one transaction.
type Tx interface {
	StagingStore
	ProductionStore
}

// Store runs reads directly and mutations through InTx.
type Store interface {
	Tx
	// InTx runs fn inside one transaction, committing when fn returns nil
	// and rolling back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
