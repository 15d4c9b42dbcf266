package training

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/passivecaptcha/server/internal/ml"
	"github.com/passivecaptcha/server/internal/ml/forest"
	"github.com/passivecaptcha/server/internal/ml/gbdt"
	"github.com/passivecaptcha/server/internal/ml/scaler"
)

// ErrAccuracyGate marks a training run whose held-out accuracy fell below
// the configured minimum. The caller must not deploy the artifact.
var ErrAccuracyGate = errors.New("training: held-out accuracy below minimum")

// Config parametrizes a training run.
type Config struct {
	HumanSamples int     // samples for the human class
	BotSamples   int     // samples split evenly across the three bot tiers
	TestFraction float64 // held-out share per class
	MinAccuracy  float64 // accuracy gate on the held-out split
	Seed         int64

	ForestTrees int
	BoostRounds int
}

// DefaultConfig mirrors the documented 1500/1500 class balance.
func DefaultConfig() Config {
	return Config{
		HumanSamples: 1500,
		BotSamples:   1500,
		TestFraction: 0.2,
		MinAccuracy:  0.85,
		Seed:         42,
		ForestTrees:  50,
		BoostRounds:  60,
	}
}

// Train synthesizes a dataset, fits scaler + ensemble, and evaluates on the
// held-out split. The scaler is fit on training rows only; both splits are
// transformed with its statistics. On gate failure the report is still
// returned for operator visibility alongside ErrAccuracyGate.
func Train(cfg Config) (*ml.Artifact, Report, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))

	data, labels := Dataset(cfg.HumanSamples, cfg.BotSamples, rng)
	trainX, trainY, testX, testY := stratifiedSplit(data, labels, cfg.TestFraction)

	var sc scaler.Robust
	if err := sc.Fit(trainX); err != nil {
		return nil, Report{}, err
	}
	scaledTrain, err := sc.TransformAll(trainX)
	if err != nil {
		return nil, Report{}, err
	}
	scaledTest, err := sc.TransformAll(testX)
	if err != nil {
		return nil, Report{}, err
	}

	f := forest.New(forest.WithTrees(cfg.ForestTrees), forest.WithSeed(cfg.Seed))
	if err := f.Fit(scaledTrain, trainY); err != nil {
		return nil, Report{}, err
	}
	b := gbdt.New(gbdt.WithRounds(cfg.BoostRounds))
	if err := b.Fit(scaledTrain, trainY); err != nil {
		return nil, Report{}, err
	}

	ensemble := &ml.Ensemble{Forest: f, Boost: b}
	report, err := Evaluate(ensemble, scaledTest, testY)
	if err != nil {
		return nil, Report{}, err
	}

	if report.Accuracy < cfg.MinAccuracy {
		return nil, report, fmt.Errorf("%w: %.4f < %.4f", ErrAccuracyGate, report.Accuracy, cfg.MinAccuracy)
	}

	artifact := &ml.Artifact{
		Classifier: ensemble,
		Scaler:     &sc,
		Meta: ml.Metadata{
			Algorithm:   ml.AlgorithmName,
			Accuracy:    report.Accuracy,
			Precision:   report.Precision,
			Recall:      report.Recall,
			F1Score:     report.F1,
			LastTrained: time.Now().UTC(),
		},
	}
	return artifact, report, nil
}

// CrossValidate runs k-fold cross-validation over a freshly generated
// dataset and returns the per-fold reports. Each fold refits scaler and
// ensemble from scratch on the remaining folds.
func CrossValidate(cfg Config, folds int) ([]Report, error) {
	if folds < 2 {
		return nil, fmt.Errorf("training: need at least 2 folds, got %d", folds)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	data, labels := Dataset(cfg.HumanSamples, cfg.BotSamples, rng)
	if len(data) < folds {
		return nil, fmt.Errorf("training: %d samples cannot fill %d folds", len(data), folds)
	}

	reports := make([]Report, 0, folds)
	foldSize := len(data) / folds
	for k := 0; k < folds; k++ {
		lo := k * foldSize
		hi := lo + foldSize
		if k == folds-1 {
			hi = len(data)
		}

		var trainX, testX [][]float64
		var trainY, testY []int
		for i := range data {
			if i >= lo && i < hi {
				testX = append(testX, data[i])
				testY = append(testY, labels[i])
			} else {
				trainX = append(trainX, data[i])
				trainY = append(trainY, labels[i])
			}
		}

		var sc scaler.Robust
		if err := sc.Fit(trainX); err != nil {
			return nil, err
		}
		scaledTrain, err := sc.TransformAll(trainX)
		if err != nil {
			return nil, err
		}
		scaledTest, err := sc.TransformAll(testX)
		if err != nil {
			return nil, err
		}

		f := forest.New(forest.WithTrees(cfg.ForestTrees), forest.WithSeed(cfg.Seed+int64(k)))
		if err := f.Fit(scaledTrain, trainY); err != nil {
			return nil, err
		}
		b := gbdt.New(gbdt.WithRounds(cfg.BoostRounds))
		if err := b.Fit(scaledTrain, trainY); err != nil {
			return nil, err
		}

		report, err := Evaluate(&ml.Ensemble{Forest: f, Boost: b}, scaledTest, testY)
		if err != nil {
			return nil, err
		}
		log.Printf("training: fold %d/%d %s", k+1, folds, report)
		reports = append(reports, report)
	}
	return reports, nil
}
