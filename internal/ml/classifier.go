// Package ml defines the classifier contract and the soft-voting ensemble
// used for human/bot scoring, plus the persisted model artifact (classifier
// + scaler + training metadata).
package ml

import (
	"errors"
	"fmt"

	"github.com/passivecaptcha/server/internal/ml/forest"
	"github.com/passivecaptcha/server/internal/ml/gbdt"
)

// Classifier scores a scaled feature vector with the probability that it was
// produced by a human. Any binary probabilistic model satisfying this
// contract is substitutable without touching extraction or scaling.
type Classifier interface {
	// PredictProba returns P(human) in [0,1] for a scaled sample.
	PredictProba(sample []float64) (float64, error)
	// Dim returns the feature dimensionality the model was trained on.
	Dim() int
}

// AlgorithmName identifies the shipped ensemble in artifact metadata.
const AlgorithmName = "soft-voting(random-forest,gbdt)"

// Ensemble combines a bagged forest and a boosted-tree model by averaging
// their class probabilities. The two have complementary bias profiles, so
// the average is more robust than either alone across the bot tiers the
// training pipeline synthesizes.
type Ensemble struct {
	Forest *forest.Forest
	Boost  *gbdt.Model
}

// PredictProba implements Classifier.
func (e *Ensemble) PredictProba(sample []float64) (float64, error) {
	if e.Forest == nil || e.Boost == nil {
		return 0, errors.New("ml: ensemble missing sub-model")
	}
	pf, err := e.Forest.PredictProba(sample)
	if err != nil {
		return 0, fmt.Errorf("ml: forest vote: %w", err)
	}
	pb, err := e.Boost.PredictProba(sample)
	if err != nil {
		return 0, fmt.Errorf("ml: gbdt vote: %w", err)
	}
	return (pf + pb) / 2, nil
}

// Dim implements Classifier. Returns 0 when the sub-models disagree, which
// only happens with a corrupt artifact.
func (e *Ensemble) Dim() int {
	if e.Forest == nil || e.Boost == nil {
		return 0
	}
	if e.Forest.Dim() != e.Boost.Dim() {
		return 0
	}
	return e.Forest.Dim()
}
