package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	goparquet "github.com/parquet-go/parquet-go"

	"github.com/sigls/facload/internal/config"
	"github.com/sigls/facload/internal/db"
	"github.com/sigls/facload/internal/ingest"
	"github.com/sigls/facload/internal/logging"
	"github.com/sigls/facload/internal/model"
	"github.com/sigls/facload/internal/promote"
	"github.com/sigls/facload/internal/store"
)

const (
	testPort     = 15433
	testDB       = "facloadtest"
	testUser     = "postgres"
	testPassword = "postgres"
)

var testDSN string

func TestMain(m *testing.M) {
	if os.Getenv("FACLOAD_INTEGRATION") != "1" {
		fmt.Fprintln(os.Stderr, "SKIP: set FACLOAD_INTEGRATION=1 to run the embedded postgres tests")
		os.Exit(0)
	}

	testDSN = fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable",
		testUser, testPassword, testPort, testDB)

	pg := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(uint32(testPort)).
			Database(testDB).
			Username(testUser).
			Password(testPassword).
			Version(embeddedpostgres.V16).
			StartTimeout(30 * time.Second),
	)

	if err := pg.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start embedded postgres: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := pg.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to stop embedded postgres: %v\n", err)
	}

	os.Exit(code)
}

// setupDB creates a connection pool on a clean schema with migrations applied.
func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := db.NewPool(ctx, testDSN)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	for _, schema := range []string{"staging", "prod"} {
		if _, err := pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
			t.Fatalf("drop schema %s: %v", schema, err)
		}
	}

	if err := db.ApplyMigrations(ctx, pool, logging.Setup("text", "warn")); err != nil {
		pool.Close()
		t.Fatalf("migrations: %v", err)
	}

	t.Cleanup(func() { pool.Close() })
	return pool
}

func strPtr(s string) *string { return &s }

// writeFixture writes rows as a parquet file in a temp dir.
func writeFixture(t *testing.T, rows []model.RawRow) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.parquet")
	if err := goparquet.WriteFile(path, rows); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func fixtureRows() []model.RawRow {
	return []model.RawRow{
		{SourceID: "A1", FacilityName: strPtr("UBS Central"), DoctorName: strPtr("Dr. Ana Souza"), SpecialtyName: strPtr("Clinico Geral")},
		{SourceID: "a-1", FacilityName: strPtr("UBS Central"), DoctorName: strPtr("Dr. Zeca"), SpecialtyName: strPtr("Ortopedia")},
		{SourceID: "A2", FacilityName: strPtr("ubs central"), DoctorName: strPtr("dr. ana souza"), SpecialtyName: strPtr("Pediatria")},
		{SourceID: "A3", FacilityName: strPtr("UBS Central"), DoctorName: strPtr("Dr. Bia"), SpecialtyName: strPtr("Triagem")},
		{SourceID: "B1", FacilityName: strPtr("UBS Norte"), DoctorName: strPtr("Dr. Ana Souza")},
		{SourceID: "--"},
	}
}

func countRows(t *testing.T, pool *pgxpool.Pool, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := pool.QueryRow(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func seedSpecialties(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO prod.specialties (name, active, visible_to_user) VALUES
			('Clínica Geral', true, true),
			('Pediatria', true, true),
			('Triagem', true, false);
		INSERT INTO prod.specialty_mappings (raw_text, specialty_id)
		SELECT 'CLINICO GERAL', id FROM prod.specialties WHERE name = 'Clínica Geral';
		INSERT INTO prod.specialty_mappings (raw_text, specialty_id)
		SELECT 'PEDIATRIA', id FROM prod.specialties WHERE name = 'Pediatria';
		INSERT INTO prod.specialty_mappings (raw_text, specialty_id)
		SELECT 'TRIAGEM', id FROM prod.specialties WHERE name = 'Triagem';`)
	if err != nil {
		t.Fatalf("seed specialties: %v", err)
	}
}

func recordID(t *testing.T, pool *pgxpool.Pool, sourceKey string) int64 {
	t.Helper()
	var id int64
	if err := pool.QueryRow(context.Background(),
		"SELECT id FROM staging.records WHERE source_key = $1", sourceKey).Scan(&id); err != nil {
		t.Fatalf("record %s: %v", sourceKey, err)
	}
	return id
}

func TestEndToEnd_IngestAndPromote(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	log := logging.Setup("text", "warn")

	cfg := config.Defaults()
	cfg.DSN = testDSN
	cfg.FilePath = writeFixture(t, fixtureRows())

	summary, err := ingest.Run(ctx, pool, log, &cfg)
	if err != nil {
		t.Fatalf("ingest.Run: %v", err)
	}

	t.Run("ingest_summary", func(t *testing.T) {
		want := model.TransformStats{Input: 6, Output: 4, Skipped: 1, Duplicates: 1}
		if summary.Transform != want {
			t.Errorf("transform stats: got %+v, want %+v", summary.Transform, want)
		}
		if summary.RowsStaged != 4 {
			t.Errorf("RowsStaged: got %d, want 4", summary.RowsStaged)
		}
		if got := countRows(t, pool, "SELECT count(*) FROM staging.records"); got != 4 {
			t.Errorf("staging rows: got %d, want 4", got)
		}
		var status string
		var staged int64
		if err := pool.QueryRow(ctx,
			"SELECT status, rows_staged FROM staging.ingest_runs WHERE ingest_run_id = $1",
			summary.IngestRunID).Scan(&status, &staged); err != nil {
			t.Fatalf("query run: %v", err)
		}
		if status != ingest.RunStaged || staged != 4 {
			t.Errorf("ingest run: got status=%s staged=%d", status, staged)
		}
	})

	t.Run("reingest_skipped", func(t *testing.T) {
		again, err := ingest.Run(ctx, pool, log, &cfg)
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
		if !again.AlreadyLoaded {
			t.Error("expected AlreadyLoaded on unchanged file")
		}
	})

	seedSpecialties(t, pool)
	svc := promote.NewService(store.NewPostgres(pool), log, promote.OptionsFromConfig(&cfg))
	anchor := recordID(t, pool, "A1")

	t.Run("missing_geocode", func(t *testing.T) {
		_, err := svc.Promote(ctx, anchor)
		if !errors.Is(err, promote.ErrMissingGeocode) {
			t.Fatalf("got %v, want ErrMissingGeocode", err)
		}
	})

	res, err := svc.Enrich(ctx, anchor, model.Enrichment{
		DisplayName: strPtr("UBS Central"),
		Latitude:    floatPtr(-23.55),
		Longitude:   floatPtr(-46.63),
	})
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if res.UpdatedCount != 3 {
		t.Errorf("enrich fan-out: got %d, want 3", res.UpdatedCount)
	}

	pr, err := svc.Promote(ctx, anchor)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}

	t.Run("promotion_result", func(t *testing.T) {
		if pr.GroupSize != 3 || pr.DoctorsProcessed != 2 || pr.SpecialtiesLinked != 1 || pr.SpecialtiesHidden != 1 {
			t.Errorf("result: %+v", pr)
		}
		if got := countRows(t, pool, "SELECT count(*) FROM prod.facilities"); got != 1 {
			t.Errorf("facilities: got %d, want 1", got)
		}
		if got := countRows(t, pool, "SELECT count(*) FROM prod.doctors"); got != 2 {
			t.Errorf("doctors: got %d, want 2", got)
		}
		if got := countRows(t, pool,
			"SELECT count(*) FROM staging.records WHERE status = 'validated' AND linked_facility_id = $1",
			pr.Facility.ID); got != 3 {
			t.Errorf("validated group records: got %d, want 3", got)
		}
	})

	t.Run("derived_specialties", func(t *testing.T) {
		var names []string
		rows, err := pool.Query(ctx, `
			SELECT s.name FROM prod.facility_specialties fs
			JOIN prod.specialties s ON s.id = fs.specialty_id
			WHERE fs.facility_id = $1 ORDER BY s.name`, pr.Facility.ID)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		defer rows.Close()
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				t.Fatalf("scan: %v", err)
			}
			names = append(names, n)
		}
		if len(names) != 1 || names[0] != "Clínica Geral" {
			t.Errorf("facility specialties: got %v, want [Clínica Geral]", names)
		}
	})

	t.Run("already_promoted", func(t *testing.T) {
		_, err := svc.Promote(ctx, recordID(t, pool, "A2"))
		if !errors.Is(err, promote.ErrAlreadyPromoted) {
			t.Fatalf("got %v, want ErrAlreadyPromoted", err)
		}
	})

	t.Run("doctor_shared_across_groups", func(t *testing.T) {
		north := recordID(t, pool, "B1")
		if _, err := svc.Enrich(ctx, north, model.Enrichment{Latitude: floatPtr(-23.4), Longitude: floatPtr(-46.6)}); err != nil {
			t.Fatalf("enrich: %v", err)
		}
		if _, err := svc.Promote(ctx, north); err != nil {
			t.Fatalf("promote: %v", err)
		}
		if got := countRows(t, pool, "SELECT count(*) FROM prod.doctors WHERE name = 'DR. ANA SOUZA'"); got != 1 {
			t.Errorf("shared doctor rows: got %d, want 1", got)
		}
	})

	t.Run("recompute_is_stable", func(t *testing.T) {
		sum, err := svc.RecomputeAll(ctx)
		if err != nil {
			t.Fatalf("recompute: %v", err)
		}
		if sum.FacilitiesScanned != 2 || sum.FacilitiesChanged != 0 {
			t.Errorf("recompute: %+v", sum)
		}
	})
}

func TestConcurrentPromotionsOfOneGroup(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	log := logging.Setup("text", "warn")

	cfg := config.Defaults()
	cfg.FilePath = writeFixture(t, fixtureRows())
	if _, err := ingest.Run(ctx, pool, log, &cfg); err != nil {
		t.Fatalf("ingest.Run: %v", err)
	}
	seedSpecialties(t, pool)

	svc := promote.NewService(store.NewPostgres(pool), log, promote.OptionsFromConfig(&cfg))
	if _, err := svc.Enrich(ctx, recordID(t, pool, "A1"), model.Enrichment{
		Latitude: floatPtr(-23.55), Longitude: floatPtr(-46.63),
	}); err != nil {
		t.Fatalf("enrich: %v", err)
	}

	ids := []int64{recordID(t, pool, "A1"), recordID(t, pool, "A2"), recordID(t, pool, "A3")}
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Promote(ctx, id)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, promote.ErrAlreadyPromoted):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("successful promotions: got %d, want 1", succeeded)
	}
	if got := countRows(t, pool, "SELECT count(*) FROM prod.facilities"); got != 1 {
		t.Errorf("facilities: got %d, want 1", got)
	}
}

func floatPtr(f float64) *float64 { return &f }
