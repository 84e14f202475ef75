package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sigls/facload/internal/db"
	"github.com/sigls/facload/internal/model"
	embedsql "github.com/sigls/facload/internal/sql"
)

const recordColumns = `id, ingest_run_id, source_key, raw_facility_name, raw_doctor_name, raw_specialty_name,
	display_name, address, latitude, longitude, image_url, icon_url, notes,
	status, linked_facility_id, created_at, updated_at`

const facilityColumns = `id, name, address, latitude, longitude, source_origin_id, source_raw_name,
	active, image_url, icon_url, created_at, updated_at`

const defaultListLimit = 20

// PostgreSQL error codes treated as retryable conflicts.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// Unique violations on these constraints are terminal. A doctor's origin id
// derives from its name, so doctors_source_origin_id_key is a plain race
// with a concurrent insert of the same doctor and stays retryable.
var originConstraints = map[string]bool{
	"facilities_source_origin_id_key": true,
}

// Postgres implements Store on pgx. Outside InTx it issues statements on
// the pool; inside, on the transaction.
type Postgres struct {
	pool db.Pool
	q    db.Querier
}

// NewPostgres creates a Postgres store.
func NewPostgres(pool db.Pool) *Postgres {
	return &Postgres{pool: pool, q: pool}
}

var _ Store = (*Postgres)(nil)

// InTx runs fn inside a pgx transaction.
func (s *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}

	if err := fn(&Postgres{pool: s.pool, q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit tx: %w", classify(err))
	}
	return nil
}

// classify tags PostgreSQL concurrency failures with ErrConflict and
// origin-id unique violations with ErrOriginCollision.
func classify(err error) error {
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrOriginCollision) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		if originConstraints[pgErr.ConstraintName] {
			return fmt.Errorf("%w: %w", ErrOriginCollision, err)
		}
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

// ---------- staging ----------

// FindRecord fetches a staging record by id.
func (s *Postgres) FindRecord(ctx context.Context, id int64) (*model.StagingRecord, error) {
	r, err := scanRecord(s.q.QueryRow(ctx, `SELECT `+recordColumns+` FROM staging.records WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find record %d: %w", id, err)
	}
	return r, nil
}

// FindGroup fetches every record sharing a raw facility name.
func (s *Postgres) FindGroup(ctx context.Context, groupKey string) ([]model.StagingRecord, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+recordColumns+` FROM staging.records WHERE raw_facility_name = $1 ORDER BY id`, groupKey)
	if err != nil {
		return nil, fmt.Errorf("store: find group: %w", err)
	}
	return collectRecords(rows)
}

// FindLinkedRecords fetches the validated records linked to a facility.
func (s *Postgres) FindLinkedRecords(ctx context.Context, facilityID int64) ([]model.StagingRecord, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+recordColumns+` FROM staging.records
		 WHERE linked_facility_id = $1 AND status = 'validated' ORDER BY id`, facilityID)
	if err != nil {
		return nil, fmt.Errorf("store: find linked records: %w", err)
	}
	return collectRecords(rows)
}

// ListRecords returns a page of records, newest first, and the total
// count matching the filter.
func (s *Postgres) ListRecords(ctx context.Context, f model.RecordFilter) ([]model.StagingRecord, int64, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	var status *string
	if f.Status != "" {
		st := string(f.Status)
		status = &st
	}

	var total int64
	if err := s.q.QueryRow(ctx,
		`SELECT count(*) FROM staging.records WHERE ($1::text IS NULL OR status = $1)`, status,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count records: %w", err)
	}

	rows, err := s.q.Query(ctx,
		`SELECT `+recordColumns+` FROM staging.records
		 WHERE ($1::text IS NULL OR status = $1)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`, status, limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list records: %w", err)
	}
	recs, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// UpdateRecord applies u to one record.
func (s *Postgres) UpdateRecord(ctx context.Context, id int64, u model.StagingUpdate) (int64, error) {
	tag, err := s.q.Exec(ctx, embedsql.UpdateRecords+` WHERE id = $1`, updateArgs(id, u)...)
	if err != nil {
		return 0, fmt.Errorf("store: update record %d: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

// UpdateRecords applies u to the listed records only.
func (s *Postgres) UpdateRecords(ctx context.Context, ids []int64, u model.StagingUpdate) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.q.Exec(ctx, embedsql.UpdateRecords+` WHERE id = ANY($1)`, updateArgs(ids, u)...)
	if err != nil {
		return 0, fmt.Errorf("store: update records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateGroup applies u to every record sharing a raw facility name.
func (s *Postgres) UpdateGroup(ctx context.Context, groupKey string, u model.StagingUpdate) (int64, error) {
	tag, err := s.q.Exec(ctx, embedsql.UpdateRecords+` WHERE raw_facility_name = $1`, updateArgs(groupKey, u)...)
	if err != nil {
		return 0, fmt.Errorf("store: update group: %w", err)
	}
	return tag.RowsAffected(), nil
}

func updateArgs(key any, u model.StagingUpdate) []any {
	var status *string
	if u.Status != nil {
		st := string(*u.Status)
		status = &st
	}
	return []any{
		key,
		u.DisplayName, u.Address, u.Latitude, u.Longitude,
		u.ImageURL, u.IconURL, u.Notes,
		status, u.LinkedFacilityID,
	}
}

func scanRecord(row pgx.Row) (*model.StagingRecord, error) {
	var (
		r      model.StagingRecord
		status string
	)
	err := row.Scan(
		&r.ID, &r.IngestRunID, &r.SourceKey, &r.RawFacilityName, &r.RawDoctorName, &r.RawSpecialtyName,
		&r.DisplayName, &r.Address, &r.Latitude, &r.Longitude, &r.ImageURL, &r.IconURL, &r.Notes,
		&status, &r.LinkedFacilityID, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = model.Status(status)
	return &r, nil
}

func collectRecords(rows pgx.Rows) ([]model.StagingRecord, error) {
	defer rows.Close()
	var out []model.StagingRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ---------- production ----------

// LockGroup takes a transaction-scoped advisory lock on the group key.
func (s *Postgres) LockGroup(ctx context.Context, groupKey string) error {
	if _, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, groupKey); err != nil {
		return fmt.Errorf("store: lock group: %w", err)
	}
	return nil
}

// UpsertFacility creates or updates the facility owning sourceOriginID.
// An existing facility promoted from a different raw name is a collision.
func (s *Postgres) UpsertFacility(ctx context.Context, sourceOriginID string, f model.FacilityFields) (*model.Facility, error) {
	fac, err := scanFacility(s.q.QueryRow(ctx, embedsql.UpsertFacility,
		sourceOriginID, f.SourceRawName, f.Name, f.Address, f.Latitude, f.Longitude, f.ImageURL, f.IconURL,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store: upsert facility %s: %w", sourceOriginID, ErrOriginCollision)
		}
		return nil, fmt.Errorf("store: upsert facility %s: %w", sourceOriginID, classify(err))
	}
	return fac, nil
}

// FindFacility fetches a facility by id.
func (s *Postgres) FindFacility(ctx context.Context, id int64) (*model.Facility, error) {
	fac, err := scanFacility(s.q.QueryRow(ctx, `SELECT `+facilityColumns+` FROM prod.facilities WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find facility %d: %w", id, err)
	}
	return fac, nil
}

// ListActiveFacilityIDs returns the ids of active facilities in id order.
func (s *Postgres) ListActiveFacilityIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.q.Query(ctx, `SELECT id FROM prod.facilities WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list facilities: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("store: scan facility ids: %w", err)
	}
	return ids, nil
}

func scanFacility(row pgx.Row) (*model.Facility, error) {
	var f model.Facility
	err := row.Scan(
		&f.ID, &f.Name, &f.Address, &f.Latitude, &f.Longitude, &f.SourceOriginID, &f.SourceRawName,
		&f.Active, &f.ImageURL, &f.IconURL, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// FindDoctorByName fetches a doctor by exact name.
func (s *Postgres) FindDoctorByName(ctx context.Context, name string) (*model.Doctor, error) {
	var d model.Doctor
	err := s.q.QueryRow(ctx,
		`SELECT id, name, source_origin_id, active FROM prod.doctors WHERE name = $1`, name,
	).Scan(&d.ID, &d.Name, &d.SourceOriginID, &d.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find doctor: %w", err)
	}
	return &d, nil
}

// UpsertDoctor returns the doctor with this name, creating it with
// sourceOriginID when absent.
func (s *Postgres) UpsertDoctor(ctx context.Context, name, sourceOriginID string) (*model.Doctor, error) {
	var d model.Doctor
	err := s.q.QueryRow(ctx, embedsql.UpsertDoctor, name, sourceOriginID).
		Scan(&d.ID, &d.Name, &d.SourceOriginID, &d.Active)
	if err != nil {
		return nil, fmt.Errorf("store: upsert doctor %s: %w", sourceOriginID, classify(err))
	}
	return &d, nil
}

// LinkFacilityDoctor links a doctor to a facility if not yet linked.
func (s *Postgres) LinkFacilityDoctor(ctx context.Context, facilityID, doctorID int64) (bool, error) {
	return s.link(ctx, "facility_doctors", "facility_id", "doctor_id", facilityID, doctorID)
}

// LinkDoctorSpecialty links a specialty to a doctor if not yet linked.
func (s *Postgres) LinkDoctorSpecialty(ctx context.Context, doctorID, specialtyID int64) (bool, error) {
	return s.link(ctx, "doctor_specialties", "doctor_id", "specialty_id", doctorID, specialtyID)
}

// LinkFacilitySpecialty links a specialty to a facility if not yet linked.
func (s *Postgres) LinkFacilitySpecialty(ctx context.Context, facilityID, specialtyID int64) (bool, error) {
	return s.link(ctx, "facility_specialties", "facility_id", "specialty_id", facilityID, specialtyID)
}

func (s *Postgres) link(ctx context.Context, table, leftCol, rightCol string, left, right int64) (bool, error) {
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		pgx.Identifier{"prod", table}.Sanitize(),
		pgx.Identifier{leftCol}.Sanitize(),
		pgx.Identifier{rightCol}.Sanitize(),
	)
	tag, err := s.q.Exec(ctx, sql, left, right)
	if err != nil {
		return false, fmt.Errorf("store: link %s: %w", table, err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindSpecialtyMapping fetches the mapping for a raw specialty text.
func (s *Postgres) FindSpecialtyMapping(ctx context.Context, rawText string) (*model.SpecialtyMapping, error) {
	var m model.SpecialtyMapping
	err := s.q.QueryRow(ctx,
		`SELECT id, raw_text, specialty_id FROM prod.specialty_mappings WHERE raw_text = $1`, rawText,
	).Scan(&m.ID, &m.RawText, &m.SpecialtyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find specialty mapping: %w", err)
	}
	return &m, nil
}

// FindSpecialty fetches a specialty by id.
func (s *Postgres) FindSpecialty(ctx context.Context, id int64) (*model.Specialty, error) {
	var sp model.Specialty
	err := s.q.QueryRow(ctx,
		`SELECT id, name, active, visible_to_user FROM prod.specialties WHERE id = $1`, id,
	).Scan(&sp.ID, &sp.Name, &sp.Active, &sp.VisibleToUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find specialty %d: %w", id, err)
	}
	return &sp, nil
}

// FacilitySpecialties returns the specialties linked to a facility, by name.
func (s *Postgres) FacilitySpecialties(ctx context.Context, facilityID int64) ([]model.Specialty, error) {
	rows, err := s.q.Query(ctx, `
		SELECT s.id, s.name, s.active, s.visible_to_user
		FROM prod.facility_specialties fs
		JOIN prod.specialties s ON s.id = fs.specialty_id
		WHERE fs.facility_id = $1
		ORDER BY s.name`, facilityID)
	if err != nil {
		return nil, fmt.Errorf("store: facility specialties: %w", err)
	}
	defer rows.Close()

	var out []model.Specialty
	for rows.Next() {
		var sp model.Specialty
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Active, &sp.VisibleToUser); err != nil {
			return nil, fmt.Errorf("store: scan specialty: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// SyncFacilitySpecialties recomputes the facility's derived specialty set
// in a single statement.
func (s *Postgres) SyncFacilitySpecialties(ctx context.Context, facilityID int64) (model.SpecialtySync, error) {
	var sync model.SpecialtySync
	err := s.q.QueryRow(ctx, embedsql.SyncFacilitySpecialties, facilityID).
		Scan(&sync.Added, &sync.Removed, &sync.Total)
	if err != nil {
		return model.SpecialtySync{}, fmt.Errorf("store: sync facility %d specialties: %w", facilityID, err)
	}
	return sync, nil
}
