package model

// RawRow mirrors one extracted source observation as delivered by the
// extraction step (Parquet column names; spreadsheet headers are mapped
// onto the same fields).
type RawRow struct {
	SourceID      string  `parquet:"source_id"`
	FacilityName  *string `parquet:"facility_name,optional"`
	DoctorName    *string `parquet:"doctor_name,optional"`
	SpecialtyName *string `parquet:"specialty_name,optional"`
}

// RawColumns lists the logical raw-row columns in file order.
var RawColumns = []string{"source_id", "facility_name", "doctor_name", "specialty_name"}
