// Package rawread streams raw extracted rows from Parquet or XLSX files.
package rawread

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/sigls/facload/internal/model"
)

// Source yields raw rows in file order.
type Source interface {
	// Read reads up to len(rows) rows into the provided slice. It returns
	// io.EOF once the source is exhausted.
	Read(rows []model.RawRow) (int, error)
	// NumRows returns the total row count of the source.
	NumRows() int64
	Close() error
}

// Open picks a reader by file extension. aliases extends the default
// spreadsheet header aliases and is ignored for Parquet input.
func Open(path string, aliases map[string][]string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		r, err := OpenParquet(path)
		if err != nil {
			return nil, err
		}
		if err := ValidateSchema(r.Schema()); err != nil {
			r.Close()
			return nil, fmt.Errorf("validate parquet schema: %w", err)
		}
		return r, nil
	case ".xlsx":
		return OpenXLSX(path, aliases)
	default:
		return nil, fmt.Errorf("unsupported input file %q: want .parquet or .xlsx", filepath.Base(path))
	}
}

const readBatchSize = 1024

// ReadAll drains src in file order.
func ReadAll(src Source) ([]model.RawRow, error) {
	var rows []model.RawRow
	if n := src.NumRows(); n > 0 {
		rows = make([]model.RawRow, 0, n)
	}
	buf := make([]model.RawRow, readBatchSize)
	for {
		n, err := src.Read(buf)
		rows = append(rows, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
	}
}
