package sql

import (
	"embed"
)

// Migrations holds the schema DDL, applied in filename order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/register_ingest_run.sql
var RegisterIngestRun string

//go:embed queries/insert_staged_records.sql
var InsertStagedRecords string

//go:embed queries/update_records.sql
var UpdateRecords string

//go:embed queries/upsert_facility.sql
var UpsertFacility string

//go:embed queries/upsert_doctor.sql
var UpsertDoctor string

//go:embed queries/sync_facility_specialties.sql
var SyncFacilitySpecialties string
