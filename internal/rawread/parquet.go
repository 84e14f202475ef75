package rawread

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/sigls/facload/internal/model"
)

// ParquetReader wraps a parquet GenericReader for streaming RawRow records.
type ParquetReader struct {
	file   *os.File
	pfile  *parquet.File
	reader *parquet.GenericReader[model.RawRow]
}

// OpenParquet opens a Parquet file and returns a streaming reader.
func OpenParquet(path string) (*ParquetReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	r := parquet.NewGenericReader[model.RawRow](pf)
	return &ParquetReader{file: f, pfile: pf, reader: r}, nil
}

func (r *ParquetReader) NumRows() int64 {
	return r.reader.NumRows()
}

func (r *ParquetReader) Read(rows []model.RawRow) (int, error) {
	n, err := r.reader.Read(rows)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("read parquet rows: %w", err)
	}
	return n, err
}

// Schema returns the schema stored in the file footer, not the one derived
// from RawRow.
func (r *ParquetReader) Schema() *parquet.Schema {
	return r.pfile.Schema()
}

func (r *ParquetReader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// ValidateSchema checks that the file carries a source_id column and at
// least one descriptive column.
func ValidateSchema(schema *parquet.Schema) error {
	columns := make(map[string]bool)
	for _, field := range schema.Fields() {
		columns[strings.ToLower(field.Name())] = true
	}

	if !columns["source_id"] {
		return fmt.Errorf("missing required column: source_id")
	}
	descriptive := model.RawColumns[1:]
	for _, col := range descriptive {
		if columns[col] {
			return nil
		}
	}
	return fmt.Errorf("no descriptive columns found; need at least one of: %s",
		strings.Join(descriptive, ", "))
}
