package ml

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passivecaptcha/server/internal/feature"
	"github.com/passivecaptcha/server/internal/ml/forest"
	"github.com/passivecaptcha/server/internal/ml/gbdt"
	"github.com/passivecaptcha/server/internal/ml/scaler"
)

// fitSmallModels trains both sub-models on trivially separable data of the
// canonical width.
func fitSmallModels(t *testing.T) (*forest.Forest, *gbdt.Model, [][]float64, []int) {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	n := 120
	data := make([][]float64, n)
	labels := make([]int, n)
	for i := range data {
		row := make([]float64, feature.Len)
		label := i % 2
		for j := range row {
			row[j] = rng.NormFloat64()*0.3 + float64(label)*3
		}
		data[i] = row
		labels[i] = label
	}

	f := forest.New(forest.WithTrees(10), forest.WithSeed(42))
	require.NoError(t, f.Fit(data, labels))
	b := gbdt.New(gbdt.WithRounds(15))
	require.NoError(t, b.Fit(data, labels))
	return f, b, data, labels
}

func TestEnsembleAveragesVotes(t *testing.T) {
	f, b, _, _ := fitSmallModels(t)
	e := &Ensemble{Forest: f, Boost: b}

	sample := make([]float64, feature.Len)
	for j := range sample {
		sample[j] = 3
	}

	pf, err := f.PredictProba(sample)
	require.NoError(t, err)
	pb, err := b.PredictProba(sample)
	require.NoError(t, err)

	pe, err := e.PredictProba(sample)
	require.NoError(t, err)
	assert.InDelta(t, (pf+pb)/2, pe, 1e-12)
}

func TestEnsembleMissingSubModel(t *testing.T) {
	e := &Ensemble{}
	_, err := e.PredictProba(make([]float64, feature.Len))
	assert.Error(t, err)
	assert.Equal(t, 0, e.Dim())
}

func TestArtifactValidate(t *testing.T) {
	t.Run("rejects incomplete artifact", func(t *testing.T) {
		a := &Artifact{}
		assert.Error(t, a.Validate())
	})

	t.Run("rejects wrong-width scaler", func(t *testing.T) {
		f, b, _, _ := fitSmallModels(t)

		var narrow scaler.Robust
		require.NoError(t, narrow.Fit([][]float64{{1, 2}, {3, 4}, {5, 6}}))

		a := &Artifact{Classifier: &Ensemble{Forest: f, Boost: b}, Scaler: &narrow}
		assert.ErrorIs(t, a.Validate(), ErrArtifactMismatch)
	})

	t.Run("accepts matching widths", func(t *testing.T) {
		f, b, data, _ := fitSmallModels(t)
		var s scaler.Robust
		require.NoError(t, s.Fit(data))

		a := &Artifact{Classifier: &Ensemble{Forest: f, Boost: b}, Scaler: &s}
		assert.NoError(t, a.Validate())
	})
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestSaveRejectsMismatchedArtifact(t *testing.T) {
	f, b, _, _ := fitSmallModels(t)
	var narrow scaler.Robust
	require.NoError(t, narrow.Fit([][]float64{{1, 2}, {3, 4}, {5, 6}}))

	a := &Artifact{Classifier: &Ensemble{Forest: f, Boost: b}, Scaler: &narrow}
	assert.ErrorIs(t, a.Save(t.TempDir()), ErrArtifactMismatch)
}
