// Package preprocess turns a raw dataset into a numeric feature matrix and
// class vector, recording the categorical encodings needed at inference.
package preprocess

import (
	"math"
	"strconv"
	"strings"

	"github.com/theblitlabs/parity-ids/internal/dataset"
	"github.com/theblitlabs/parity-ids/internal/utils/errorutil"
	"github.com/theblitlabs/parity-ids/pkg/logger"
)

// DefaultTargetColumn is the label column name used when none is configured.
const DefaultTargetColumn = "label"

// Result is the output of Preprocess. Features fixes the column order of X
// for the scaler and for every future inference record.
type Result struct {
	X        [][]float64
	Y        []int
	Features []string
	Classes  []string
	Encoders *Registry
}

// NumClasses returns the number of target classes.
func (r *Result) NumClasses() int { return len(r.Classes) }

// Preprocess drops incomplete rows, separates the target column and encodes
// every non-numeric column.
func Preprocess(ds *dataset.Dataset, target string) (*Result, error) {
	log := logger.WithComponent("preprocess")

	if ds == nil || ds.NumRows() == 0 {
		return nil, errorutil.New(errorutil.ErrPreprocess, "dataset is empty")
	}
	targetIdx, ok := ds.ColumnIndex(target)
	if !ok {
		log.Error().Str("target", target).Strs("columns", ds.Columns).Msg("Target column not found")
		return nil, errorutil.New(errorutil.ErrPreprocess, "target column %q not found", target)
	}
	if ds.NumColumns() < 2 {
		return nil, errorutil.New(errorutil.ErrPreprocess, "dataset has no feature columns")
	}

	rows := dropIncomplete(ds.Rows)
	log.Info().
		Int("rows", len(rows)).
		Int("dropped", ds.NumRows()-len(rows)).
		Msg("Dropped rows with missing values")
	if len(rows) == 0 {
		return nil, errorutil.New(errorutil.ErrPreprocess, "no rows left after removing incomplete records")
	}

	result := &Result{
		X:        make([][]float64, len(rows)),
		Encoders: NewRegistry(),
	}
	for i := range result.X {
		result.X[i] = make([]float64, 0, ds.NumColumns()-1)
	}

	for j, name := range ds.Columns {
		if j == targetIdx {
			continue
		}
		column := columnValues(rows, j)
		values, numeric := parseColumn(column)
		if !numeric {
			enc := FitEncoder(column)
			result.Encoders.Columns[name] = enc
			for i, v := range column {
				code, _ := enc.Encode(v)
				values[i] = float64(code)
			}
			log.Debug().Str("column", name).Int("categories", enc.Len()).Msg("Encoded categorical feature")
		}
		for i, v := range values {
			result.X[i] = append(result.X[i], v)
		}
		result.Features = append(result.Features, name)
	}

	if err := encodeTarget(result, columnValues(rows, targetIdx)); err != nil {
		log.Error().Err(err).Str("target", target).Msg("Failed to encode target column")
		return nil, err
	}

	log.Info().
		Int("features", len(result.Features)).
		Int("categorical", len(result.Encoders.Columns)).
		Int("classes", result.NumClasses()).
		Msg("Preprocessing complete")
	return result, nil
}

// encodeTarget maps the label column onto class indices. A categorical
// target gets an encoder; a numeric target must already hold the indices
// 0..K-1.
func encodeTarget(result *Result, column []string) error {
	values, numeric := parseColumn(column)
	result.Y = make([]int, len(column))

	if !numeric {
		enc := FitEncoder(column)
		result.Encoders.Target = enc
		for i, v := range column {
			code, _ := enc.Encode(v)
			result.Y[i] = code
		}
		result.Classes = enc.Categories()
		return nil
	}

	maxClass := -1
	present := make(map[int]bool)
	for i, v := range values {
		if v < 0 || v != math.Trunc(v) {
			return errorutil.New(errorutil.ErrPreprocess, "numeric target value %v is not a class index", v)
		}
		class := int(v)
		result.Y[i] = class
		present[class] = true
		if class > maxClass {
			maxClass = class
		}
	}
	for c := 0; c <= maxClass; c++ {
		if !present[c] {
			return errorutil.New(errorutil.ErrPreprocess, "numeric target must use contiguous class indices from 0; class %d is absent", c)
		}
		result.Classes = append(result.Classes, strconv.Itoa(c))
	}
	return nil
}

func dropIncomplete(rows [][]string) [][]string {
	kept := make([][]string, 0, len(rows))
	for _, row := range rows {
		complete := true
		for _, cell := range row {
			if dataset.IsMissing(cell) {
				complete = false
				break
			}
		}
		if complete {
			kept = append(kept, row)
		}
	}
	return kept
}

func columnValues(rows [][]string, j int) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = strings.TrimSpace(row[j])
	}
	return out
}

// parseColumn returns the numeric values of a column and whether every cell parsed.
func parseColumn(column []string) ([]float64, bool) {
	values := make([]float64, len(column))
	numeric := true
	for i, cell := range column {
		v, ok := parseNumber(cell)
		if !ok {
			numeric = false
			continue
		}
		values[i] = v
	}
	return values, numeric
}
