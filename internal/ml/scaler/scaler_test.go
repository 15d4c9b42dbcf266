package scaler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitTransform(t *testing.T) {
	rows := [][]float64{
		{1, 10},
		{2, 20},
		{3, 30},
		{4, 40},
		{5, 50},
	}

	var s Robust
	require.NoError(t, s.Fit(rows))

	// Median of col 0 is 3, IQR is q75-q25 = 4-2 = 2.
	out, err := s.Transform([]float64{3, 30})
	require.NoError(t, err)
	assert.InDelta(t, 0, out[0], 1e-12)
	assert.InDelta(t, 0, out[1], 1e-12)

	out, err = s.Transform([]float64{5, 30})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out[0], 1e-12)
}

func TestFitErrors(t *testing.T) {
	var s Robust
	assert.Error(t, s.Fit(nil))
	assert.Error(t, s.Fit([][]float64{{1, 2}, {1}}))
}

func TestTransformBeforeFit(t *testing.T) {
	var s Robust
	_, err := s.Transform([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestDimensionMismatchFailsFast(t *testing.T) {
	var s Robust
	require.NoError(t, s.Fit([][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}))

	_, err := s.Transform([]float64{1, 2})
	assert.ErrorIs(t, err, ErrDimension)

	_, err = s.TransformAll([][]float64{{1, 2, 3}, {1, 2}})
	assert.ErrorIs(t, err, ErrDimension)
}

func TestConstantFeatureDegradesGracefully(t *testing.T) {
	rows := [][]float64{{7, 1}, {7, 2}, {7, 3}, {7, 4}}
	var s Robust
	require.NoError(t, s.Fit(rows))

	out, err := s.Transform([]float64{7, 2.5})
	require.NoError(t, err)
	// Constant column: centered but not blown up by a zero IQR.
	assert.InDelta(t, 0, out[0], 1e-12)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	rows := [][]float64{
		{0, 100, -5},
		{1, 200, 0},
		{2, 300, 5},
		{3, 400, 10},
	}
	var s Robust
	require.NoError(t, s.Fit(rows))

	blob, err := s.Save()
	require.NoError(t, err)

	var restored Robust
	require.NoError(t, restored.Load(blob))
	assert.Equal(t, s.Dim(), restored.Dim())

	in := []float64{1.5, 250, 7}
	want, err := s.Transform(in)
	require.NoError(t, err)
	got, err := restored.Transform(in)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)
}

func TestLoadRejectsCorruptState(t *testing.T) {
	var s Robust
	assert.Error(t, s.Load([]byte("not a gob")))

	var unfitted Robust
	_, err := unfitted.Save()
	assert.ErrorIs(t, err, ErrNotFitted)
}
