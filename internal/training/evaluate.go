package training

import (
	"fmt"

	"github.com/passivecaptcha/server/internal/ml"
)

// Report holds held-out evaluation metrics for a fitted classifier. Human is
// the positive class.
type Report struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64

	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int
}

func (r Report) String() string {
	return fmt.Sprintf("accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f (tp=%d fp=%d tn=%d fn=%d)",
		r.Accuracy, r.Precision, r.Recall, r.F1,
		r.TruePositives, r.FalsePositives, r.TrueNegatives, r.FalseNegatives)
}

// evalThreshold is the cutoff used for metric computation. This is distinct
// from the runtime confidence threshold, which is service policy.
const evalThreshold = 0.5

// Evaluate scores already-scaled rows and tallies classification metrics.
func Evaluate(c ml.Classifier, rows [][]float64, labels []int) (Report, error) {
	var r Report
	for i, row := range rows {
		p, err := c.PredictProba(row)
		if err != nil {
			return r, fmt.Errorf("training: evaluate sample %d: %w", i, err)
		}
		predHuman := p >= evalThreshold
		switch {
		case predHuman && labels[i] == LabelHuman:
			r.TruePositives++
		case predHuman && labels[i] == LabelBot:
			r.FalsePositives++
		case !predHuman && labels[i] == LabelBot:
			r.TrueNegatives++
		default:
			r.FalseNegatives++
		}
	}

	total := r.TruePositives + r.FalsePositives + r.TrueNegatives + r.FalseNegatives
	if total == 0 {
		return r, fmt.Errorf("training: nothing to evaluate")
	}
	r.Accuracy = float64(r.TruePositives+r.TrueNegatives) / float64(total)
	if denom := r.TruePositives + r.FalsePositives; denom > 0 {
		r.Precision = float64(r.TruePositives) / float64(denom)
	}
	if denom := r.TruePositives + r.FalseNegatives; denom > 0 {
		r.Recall = float64(r.TruePositives) / float64(denom)
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	return r, nil
}

// stratifiedSplit partitions rows into train/test keeping the class ratio.
// testFraction is clamped to (0,1); rows are assumed pre-shuffled.
func stratifiedSplit(rows [][]float64, labels []int, testFraction float64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	if testFraction <= 0 || testFraction >= 1 {
		testFraction = 0.2
	}

	var perClass [2]int
	for _, y := range labels {
		perClass[y]++
	}
	testQuota := [2]int{
		int(float64(perClass[0]) * testFraction),
		int(float64(perClass[1]) * testFraction),
	}

	var taken [2]int
	for i, row := range rows {
		y := labels[i]
		if taken[y] < testQuota[y] {
			testX = append(testX, row)
			testY = append(testY, y)
			taken[y]++
		} else {
			trainX = append(trainX, row)
			trainY = append(trainY, y)
		}
	}
	return
}
