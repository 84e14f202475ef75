package model

import "time"

// Status is the processing state of a staging record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusError     Status = "error"
	StatusIgnored   Status = "ignored"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusValidated, StatusError, StatusIgnored:
		return true
	}
	return false
}

// StagingRecord is one raw, cleaned fact awaiting review and promotion.
// Raw* fields are written by ingestion only; the enrichment fields are
// written by the manual enrichment workflow.
type StagingRecord struct {
	ID          int64
	IngestRunID *int64
	SourceKey   string

	RawFacilityName  *string
	RawDoctorName    *string
	RawSpecialtyName *string

	// Manual enrichment
	DisplayName *string
	Address     *string
	Latitude    *float64
	Longitude   *float64
	ImageURL    *string
	IconURL     *string
	Notes       *string

	Status           Status
	LinkedFacilityID *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasGeocode reports whether both manual coordinates are present.
func (r *StagingRecord) HasGeocode() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// StagingInsertColumns returns the ordered column names used when COPYing
// freshly transformed records.
func StagingInsertColumns() []string {
	return []string{
		"ingest_run_id",
		"source_key",
		"raw_facility_name",
		"raw_doctor_name",
		"raw_specialty_name",
		"status",
	}
}

// CopyValues returns the record's values in StagingInsertColumns order.
func (r *StagingRecord) CopyValues() []any {
	status := r.Status
	if status == "" {
		status = StatusPending
	}
	return []any{
		r.IngestRunID,
		r.SourceKey,
		r.RawFacilityName,
		r.RawDoctorName,
		r.RawSpecialtyName,
		string(status),
	}
}

// Enrichment carries manually supplied facility details. Nil fields are
// left untouched when applied.
type Enrichment struct {
	DisplayName *string
	Address     *string
	Latitude    *float64
	Longitude   *float64
	ImageURL    *string
	IconURL     *string
	Notes       *string
}

// IsEmpty reports whether no field is set.
func (e Enrichment) IsEmpty() bool {
	return e.DisplayName == nil && e.Address == nil &&
		e.Latitude == nil && e.Longitude == nil &&
		e.ImageURL == nil && e.IconURL == nil && e.Notes == nil
}

// Fields returns the names of the populated fields, for logging.
func (e Enrichment) Fields() []string {
	var f []string
	if e.DisplayName != nil {
		f = append(f, "display_name")
	}
	if e.Address != nil {
		f = append(f, "address")
	}
	if e.Latitude != nil {
		f = append(f, "latitude")
	}
	if e.Longitude != nil {
		f = append(f, "longitude")
	}
	if e.ImageURL != nil {
		f = append(f, "image_url")
	}
	if e.IconURL != nil {
		f = append(f, "icon_url")
	}
	if e.Notes != nil {
		f = append(f, "notes")
	}
	return f
}

// StagingUpdate is a partial update of staging records. Nil fields keep
// their current value.
type StagingUpdate struct {
	Enrichment
	Status           *Status
	LinkedFacilityID *int64
}

// Apply copies the populated fields of u onto r.
func (u StagingUpdate) Apply(r *StagingRecord) {
	if u.DisplayName != nil {
		r.DisplayName = u.DisplayName
	}
	if u.Address != nil {
		r.Address = u.Address
	}
	if u.Latitude != nil {
		r.Latitude = u.Latitude
	}
	if u.Longitude != nil {
		r.Longitude = u.Longitude
	}
	if u.ImageURL != nil {
		r.ImageURL = u.ImageURL
	}
	if u.IconURL != nil {
		r.IconURL = u.IconURL
	}
	if u.Notes != nil {
		r.Notes = u.Notes
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.LinkedFacilityID != nil {
		r.LinkedFacilityID = u.LinkedFacilityID
	}
}

// RecordFilter selects a page of staging records.
type RecordFilter struct {
	Status Status // empty = any
	Limit  int
	Offset int
}
