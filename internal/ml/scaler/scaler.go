// Package scaler implements robust per-feature normalization (median
// centering, IQR scaling). Robust statistics are used because bot feature
// distributions are outlier-heavy: zero movement counts and spoofed scores
// would badly distort mean/stddev estimates.
package scaler

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotFitted is returned when Transform is called before Fit.
	ErrNotFitted = errors.New("scaler: not fitted")
	// ErrDimension is returned when an input row's width does not match the
	// statistics computed at fit time. This is a programming or artifact
	// corruption error and must surface loudly.
	ErrDimension = errors.New("scaler: dimension mismatch")
)

// Robust is a fitted median/IQR scaler. Zero value is unfitted; call Fit or
// Load before Transform.
type Robust struct {
	state state
}

// state holds the fitted statistics. Exported fields for gob.
type state struct {
	Medians []float64
	Scales  []float64 // IQR per feature; degenerate IQRs are stored as 1
	Fitted  bool
}

// Fit computes per-feature medians and interquartile ranges over the rows.
func (s *Robust) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return errors.New("scaler: empty fit data")
	}
	dim := len(rows[0])
	if dim == 0 {
		return errors.New("scaler: zero-width rows")
	}
	for i, row := range rows {
		if len(row) != dim {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrDimension, i, len(row), dim)
		}
	}

	medians := make([]float64, dim)
	scales := make([]float64, dim)
	col := make([]float64, len(rows))
	for j := 0; j < dim; j++ {
		for i, row := range rows {
			col[i] = row[j]
		}
		sort.Float64s(col)
		medians[j] = quantile(col, 0.5)
		iqr := quantile(col, 0.75) - quantile(col, 0.25)
		if iqr <= 0 {
			// Constant (or near-constant) feature: center only.
			iqr = 1
		}
		scales[j] = iqr
	}

	s.state = state{Medians: medians, Scales: scales, Fitted: true}
	return nil
}

// Transform normalizes a single row with the statistics from Fit.
func (s *Robust) Transform(row []float64) ([]float64, error) {
	if !s.state.Fitted {
		return nil, ErrNotFitted
	}
	if len(row) != len(s.state.Medians) {
		return nil, fmt.Errorf("%w: got %d features, fitted on %d", ErrDimension, len(row), len(s.state.Medians))
	}
	out := make([]float64, len(row))
	for j, x := range row {
		out[j] = (x - s.state.Medians[j]) / s.state.Scales[j]
	}
	return out, nil
}

// TransformAll normalizes every row, failing on the first mismatch.
func (s *Robust) TransformAll(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		t, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// Dim returns the fitted dimensionality, or 0 if unfitted.
func (s *Robust) Dim() int {
	return len(s.state.Medians)
}

// Save serializes the fitted statistics.
func (s *Robust) Save() ([]byte, error) {
	if !s.state.Fitted {
		return nil, ErrNotFitted
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.state); err != nil {
		return nil, fmt.Errorf("scaler: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Load restores fitted statistics produced by Save.
func (s *Robust) Load(data []byte) error {
	var st state
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return fmt.Errorf("scaler: decode: %w", err)
	}
	if !st.Fitted || len(st.Medians) == 0 || len(st.Medians) != len(st.Scales) {
		return errors.New("scaler: corrupt state")
	}
	s.state = st
	return nil
}

// quantile interpolates the q-th quantile of a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
