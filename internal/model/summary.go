package model

import "time"

// TransformStats counts the outcome of one transform pass.
type TransformStats struct {
	Input      int64
	Output     int64
	Skipped    int64
	Duplicates int64
}

// IngestSummary captures metrics from a single file ingest run.
type IngestSummary struct {
	FilePath      string
	FileSHA256    string
	IngestRunID   int64
	IngestBatchID string
	Transform     TransformStats
	RowsStaged    int64
	RowsExisting  int64
	AlreadyLoaded bool

	DurationRead      time.Duration
	DurationTransform time.Duration
	DurationStage     time.Duration
	DurationTotal     time.Duration
}

// PromotionResult is returned by a successful group promotion.
type PromotionResult struct {
	Facility            *Facility
	GroupKey            string
	GroupSize           int
	RecordsUpdated      int64
	DoctorsProcessed    int
	SpecialtiesLinked   int
	SpecialtiesUnmapped int
	SpecialtiesHidden   int
	FacilitySpecialties int64
	Duration            time.Duration
}

// ReprocessResult is returned by re-linking an already promoted facility.
type ReprocessResult struct {
	FacilityID          int64
	RecordsScanned      int
	DoctorsProcessed    int
	SpecialtiesLinked   int
	SpecialtiesUnmapped int
	SpecialtiesHidden   int
	Sync                SpecialtySync
	Duration            time.Duration
}

// RecomputeSummary aggregates a full specialty recompute.
type RecomputeSummary struct {
	FacilitiesScanned int
	FacilitiesChanged int
	LinksAdded        int64
	LinksRemoved      int64
	Duration          time.Duration
}

// EnrichResult reports how many staging records an enrichment touched.
type EnrichResult struct {
	GroupKey     string
	UpdatedCount int64
}
