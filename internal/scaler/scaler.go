// Package scaler standardises features to zero mean and unit variance using
// statistics fitted on the training split only.
package scaler

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/theblitlabs/parity-ids/internal/utils/errorutil"
)

// StandardScaler stores per-feature population mean and standard deviation.
// A feature with zero standard deviation always transforms to 0.
type StandardScaler struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Std      []float64 `json:"std"`
}

// New creates an unfitted scaler for the ordered feature names.
func New(features []string) *StandardScaler {
	return &StandardScaler{Features: append([]string(nil), features...)}
}

// Fitted reports whether Fit has run (or state was restored).
func (s *StandardScaler) Fitted() bool {
	return s != nil && s.Mean != nil && s.Std != nil
}

// Fit computes the statistics of every column of X, replacing any previous fit.
func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("cannot fit scaler on empty data")
	}
	cols := len(X[0])
	if s.Features != nil && len(s.Features) != cols {
		return fmt.Errorf("scaler expects %d features, data has %d", len(s.Features), cols)
	}

	mean := make([]float64, cols)
	std := make([]float64, cols)
	column := make([]float64, len(X))
	for j := 0; j < cols; j++ {
		for i, row := range X {
			if len(row) != cols {
				return fmt.Errorf("row %d has %d features, expected %d", i, len(row), cols)
			}
			column[i] = row[j]
		}
		mean[j], std[j] = stat.PopMeanStdDev(column, nil)
		// Constant columns are detected exactly; the float mean of identical
		// values can leave a tiny non-zero deviation.
		if floats.Min(column) == floats.Max(column) {
			mean[j] = column[0]
			std[j] = 0
		}
	}

	s.Mean = mean
	s.Std = std
	return nil
}

// Transform standardises X with the fitted statistics.
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	if !s.Fitted() {
		return nil, errorutil.New(errorutil.ErrModelNotTrained, "scaler has not been fitted")
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled, err := s.TransformRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

// TransformRow standardises a single feature row.
func (s *StandardScaler) TransformRow(row []float64) ([]float64, error) {
	if !s.Fitted() {
		return nil, errorutil.New(errorutil.ErrModelNotTrained, "scaler has not been fitted")
	}
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("expected %d features, got %d", len(s.Mean), len(row))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		if s.Std[j] == 0 {
			continue
		}
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out, nil
}

// FitTransform fits on X and returns the transformed copy.
func (s *StandardScaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}
