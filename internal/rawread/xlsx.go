package rawread

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/sigls/facload/internal/model"
)

// DefaultHeaderAliases maps each raw column to the spreadsheet headers
// accepted for it. Headers are compared case-insensitively.
var DefaultHeaderAliases = map[string][]string{
	"source_id":      {"source_id", "id_origem"},
	"facility_name":  {"facility_name", "nome_unidade", "unidade"},
	"doctor_name":    {"doctor_name", "nome_medico", "medico"},
	"specialty_name": {"specialty_name", "nome_especialidade", "especialidade"},
}

// XLSXReader serves rows from the first worksheet of a workbook. The first
// non-empty row is the header.
type XLSXReader struct {
	rows []model.RawRow
	pos  int
}

// OpenXLSX loads the first worksheet of the workbook at path.
func OpenXLSX(path string, aliases map[string][]string) (*XLSXReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx file has no worksheets")
	}
	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", sheets[0], err)
	}

	rows, err := parseSheet(cells, mergeAliases(aliases))
	if err != nil {
		return nil, fmt.Errorf("worksheet %q: %w", sheets[0], err)
	}
	return &XLSXReader{rows: rows}, nil
}

func (r *XLSXReader) NumRows() int64 {
	return int64(len(r.rows))
}

func (r *XLSXReader) Read(rows []model.RawRow) (int, error) {
	if r.pos >= len(r.rows) {
		return 0, io.EOF
	}
	n := copy(rows, r.rows[r.pos:])
	r.pos += n
	if r.pos >= len(r.rows) {
		return n, io.EOF
	}
	return n, nil
}

func (r *XLSXReader) Close() error {
	r.rows = nil
	return nil
}

// mergeAliases appends configured aliases to the defaults.
func mergeAliases(extra map[string][]string) map[string][]string {
	out := make(map[string][]string, len(DefaultHeaderAliases))
	for col, names := range DefaultHeaderAliases {
		out[col] = append([]string(nil), names...)
	}
	for col, names := range extra {
		out[col] = append(out[col], names...)
	}
	return out
}

// parseSheet maps header cells onto raw columns and converts the data rows.
// Blank cells become nil; rows with every cell blank are skipped.
func parseSheet(cells [][]string, aliases map[string][]string) ([]model.RawRow, error) {
	lookup := make(map[string]string)
	for col, names := range aliases {
		for _, name := range names {
			lookup[headerKey(name)] = col
		}
	}

	start := 0
	for start < len(cells) && blankRow(cells[start]) {
		start++
	}
	if start == len(cells) {
		return nil, nil
	}

	index := make(map[string]int)
	for i, h := range cells[start] {
		col, ok := lookup[headerKey(h)]
		if !ok {
			continue
		}
		if _, dup := index[col]; !dup {
			index[col] = i
		}
	}
	if _, ok := index["source_id"]; !ok {
		return nil, fmt.Errorf("missing required column: source_id (accepted headers: %s)",
			strings.Join(aliases["source_id"], ", "))
	}

	cell := func(row []string, col string) *string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return nil
		}
		v := strings.TrimSpace(row[i])
		if v == "" {
			return nil
		}
		return &v
	}

	var out []model.RawRow
	for _, row := range cells[start+1:] {
		if blankRow(row) {
			continue
		}
		rr := model.RawRow{
			FacilityName:  cell(row, "facility_name"),
			DoctorName:    cell(row, "doctor_name"),
			SpecialtyName: cell(row, "specialty_name"),
		}
		if id := cell(row, "source_id"); id != nil {
			rr.SourceID = *id
		}
		out = append(out, rr)
	}
	return out, nil
}

func headerKey(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
