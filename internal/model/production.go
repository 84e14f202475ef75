package model

import "time"

// Facility is a canonical, map-displayable health facility.
type Facility struct {
	ID             int64
	Name           string
	Address        *string
	Latitude       *float64
	Longitude      *float64
	SourceOriginID string
	SourceRawName  string
	Active         bool
	ImageURL       *string
	IconURL        *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FacilityFields are the mutable facility columns written on every
// promotion of a group.
type FacilityFields struct {
	Name          string
	Address       *string
	Latitude      float64
	Longitude     float64
	ImageURL      *string
	IconURL       *string
	SourceRawName string
}

// Doctor is a canonical doctor. Doctors are global: the same name in two
// facility groups resolves to one row.
type Doctor struct {
	ID             int64
	Name           string
	SourceOriginID string
	Active         bool
}

// Specialty is an administrator-maintained canonical specialty.
type Specialty struct {
	ID            int64
	Name          string
	Active        bool
	VisibleToUser bool
}

// Listable reports whether the specialty may appear in a facility's
// public specialty set.
func (s *Specialty) Listable() bool {
	return s.Active && s.VisibleToUser
}

// SpecialtyMapping maps one raw specialty spelling to a canonical specialty.
type SpecialtyMapping struct {
	ID          int64
	RawText     string
	SpecialtyID int64
}

// SpecialtySync reports how a facility's derived specialty set changed.
type SpecialtySync struct {
	Added   int64
	Removed int64
	Total   int64
}
