package db

import (
	"github.com/jackc/pgx/v5"

	"github.com/sigls/facload/internal/model"
)

// RecordSource implements pgx.CopyFromSource over transformed staging
// records. Each row is prefixed with its 1-based ordinal so the insert
// step can preserve transform order.
type RecordSource struct {
	records []model.StagingRecord
	idx     int
}

// NewRecordSource creates a CopyFromSource over records.
func NewRecordSource(records []model.StagingRecord) *RecordSource {
	return &RecordSource{records: records, idx: -1}
}

// RecordSourceColumns returns the COPY column order produced by Values.
func RecordSourceColumns() []string {
	return append([]string{"ord"}, model.StagingInsertColumns()...)
}

// Next advances to the next record. Returns false when exhausted.
func (s *RecordSource) Next() bool {
	s.idx++
	return s.idx < len(s.records)
}

// Values returns the current record's values in RecordSourceColumns order.
func (s *RecordSource) Values() ([]any, error) {
	return append([]any{int64(s.idx + 1)}, s.records[s.idx].CopyValues()...), nil
}

// Err returns any error encountered during iteration.
func (s *RecordSource) Err() error {
	return nil
}

// Compile-time check that RecordSource satisfies the interface.
var _ pgx.CopyFromSource = (*RecordSource)(nil)
