// Package dataset reads tabular network-traffic records into memory.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/theblitlabs/parity-ids/internal/utils/errorutil"
	"github.com/theblitlabs/parity-ids/pkg/logger"
)

// Dataset is an in-memory table of raw cell values. Every row has exactly
// len(Columns) cells, in header order.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// NumRows returns the number of records.
func (d *Dataset) NumRows() int { return len(d.Rows) }

// NumColumns returns the number of columns, target included.
func (d *Dataset) NumColumns() int { return len(d.Columns) }

// ColumnIndex returns the position of a named column.
func (d *Dataset) ColumnIndex(name string) (int, bool) {
	for i, c := range d.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Record returns row i as a column-name keyed map.
func (d *Dataset) Record(i int) map[string]string {
	rec := make(map[string]string, len(d.Columns))
	for j, c := range d.Columns {
		rec[c] = d.Rows[i][j]
	}
	return rec
}

// IsMissing reports whether a raw cell holds no value.
func IsMissing(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "", "na", "nan", "n/a", "null", "none":
		return true
	default:
		return false
	}
}

// LoadCSV reads a CSV file whose first line is the header.
func LoadCSV(path string) (*Dataset, error) {
	log := logger.WithComponent("dataset")

	f, err := os.Open(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to open dataset")
		return nil, errorutil.Wrap(errorutil.ErrDatasetLoad, err, "failed to open %s", path)
	}
	defer f.Close()

	ds, err := Load(f)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to load dataset")
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("rows", ds.NumRows()).
		Int("columns", ds.NumColumns()).
		Msg("Dataset loaded")
	return ds, nil
}

// Load parses CSV content. Empty input, a header without rows, duplicate
// header names and ragged rows are all load errors.
func Load(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errorutil.New(errorutil.ErrDatasetLoad, "dataset is empty")
	}
	if err != nil {
		return nil, errorutil.Wrap(errorutil.ErrDatasetLoad, err, "failed to read CSV header")
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == "" {
			return nil, errorutil.New(errorutil.ErrDatasetLoad, "column %d has an empty name", i)
		}
		if seen[name] {
			return nil, errorutil.New(errorutil.ErrDatasetLoad, "duplicate column %q", name)
		}
		seen[name] = true
		columns[i] = name
	}

	ds := &Dataset{Columns: columns}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errorutil.Wrap(errorutil.ErrDatasetLoad, err, "failed to read CSV record")
		}
		ds.Rows = append(ds.Rows, record)
	}

	if len(ds.Rows) == 0 {
		return nil, errorutil.New(errorutil.ErrDatasetLoad, "dataset has a header but no records")
	}
	return ds, nil
}

func (d *Dataset) String() string {
	return fmt.Sprintf("dataset(%d rows x %d columns)", d.NumRows(), d.NumColumns())
}
