// mkfixture writes a synthetic raw-row Parquet file for local runs and tests:
// facilities with several doctors each, deliberate source-id duplicates in
// varying spellings, rows without ids, and mixed-case names.
// Usage: go run ./cmd/mkfixture --out testdata/sample.parquet --facilities 20 --seed 42
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	goparquet "github.com/parquet-go/parquet-go"

	"github.com/sigls/facload/internal/model"
	"github.com/sigls/facload/internal/normalize"
)

var specialties = []string{
	"Clinico Geral", "clínico geral", "Pediatria", "Ginecologia", "Cardiologia",
	"Ortopedia", "Dermatologia", "Psiquiatria", "Triagem", "Oftalmologia",
}

var facilityKinds = []string{"UBS", "USF", "AMA", "Policlínica", "Hospital Dia"}

func main() {
	out := flag.String("out", "testdata/sample.parquet", "output parquet")
	facilities := flag.Int("facilities", 20, "number of distinct facilities")
	maxDoctors := flag.Int("doctors", 6, "max doctors per facility")
	dupEvery := flag.Int("dup-every", 7, "emit a source-id duplicate every N rows (0 disables)")
	seed := flag.Int64("seed", 42, "random seed")
	checkOnly := flag.String("check", "", "only print stats for an existing parquet file")
	flag.Parse()

	if *checkOnly != "" {
		if err := check(*checkOnly); err != nil {
			fmt.Fprintf(os.Stderr, "check: %v\n", err)
			os.Exit(1)
		}
		return
	}

	rows := generate(gofakeit.New(*seed), *facilities, *maxDoctors, *dupEvery)

	outFile, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer outFile.Close()

	writer := goparquet.NewGenericWriter[model.RawRow](outFile)
	if _, err := writer.Write(rows); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	if err := writer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close writer: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d rows to %s\n", len(rows), *out)
	printStats(rows)
}

func generate(f *gofakeit.Faker, facilities, maxDoctors, dupEvery int) []model.RawRow {
	var rows []model.RawRow
	seq := 0
	for i := 0; i < facilities; i++ {
		facility := fmt.Sprintf("%s %s", f.RandomString(facilityKinds), f.City())
		doctors := f.Number(1, maxDoctors)
		for d := 0; d < doctors; d++ {
			seq++
			doctor := "Dr. " + f.Name()
			row := model.RawRow{
				SourceID:      f.Numerify(fmt.Sprintf("SRC-%04d-###", seq)),
				FacilityName:  strPtr(spell(f, facility)),
				DoctorName:    strPtr(doctor),
				SpecialtyName: strPtr(f.RandomString(specialties)),
			}
			rows = append(rows, row)

			if dupEvery > 0 && seq%dupEvery == 0 {
				dup := row
				dup.SourceID = strings.ToLower(strings.ReplaceAll(row.SourceID, "-", " "))
				dup.SpecialtyName = strPtr(f.RandomString(specialties))
				rows = append(rows, dup)
			}
		}
		if f.Number(0, 9) == 0 {
			rows = append(rows, model.RawRow{SourceID: "--", FacilityName: strPtr(facility)})
		}
	}
	return rows
}

// spell varies case and spacing of a name; cleaning must map them back
// onto one group.
func spell(f *gofakeit.Faker, name string) string {
	switch f.Number(0, 3) {
	case 0:
		return strings.ToUpper(name)
	case 1:
		return "  " + strings.ToLower(name)
	case 2:
		return strings.ReplaceAll(name, " ", "  ")
	}
	return name
}

func check(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return err
	}
	pf, err := goparquet.OpenFile(file, stat.Size())
	if err != nil {
		return err
	}
	reader := goparquet.NewGenericReader[model.RawRow](pf)
	defer reader.Close()

	var rows []model.RawRow
	buf := make([]model.RawRow, 1024)
	for {
		n, readErr := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	printStats(rows)
	return nil
}

func printStats(rows []model.RawRow) {
	keys := make(map[string]int)
	groups := make(map[string]int)
	noKey := 0
	for i := range rows {
		k := normalize.NormalizeSourceKey(rows[i].SourceID)
		if k == nil {
			noKey++
			continue
		}
		keys[*k]++
		if name := normalize.CleanText(rows[i].FacilityName); name != nil {
			groups[*name]++
		}
	}
	dups := 0
	for _, c := range keys {
		dups += c - 1
	}
	fmt.Printf("  %-12s %d\n", "rows", len(rows))
	fmt.Printf("  %-12s %d\n", "source keys", len(keys))
	fmt.Printf("  %-12s %d\n", "duplicates", dups)
	fmt.Printf("  %-12s %d\n", "no key", noKey)
	fmt.Printf("  %-12s %d\n", "groups", len(groups))
}

func strPtr(s string) *string { return &s }
