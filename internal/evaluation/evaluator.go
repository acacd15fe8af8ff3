// Package evaluation scores a fitted classifier on held-out data.
package evaluation

import (
	"fmt"
	"math"
	"strconv"

	"github.com/theblitlabs/parity-ids/internal/execution/training"
	"github.com/theblitlabs/parity-ids/pkg/logger"
)

// Evaluate predicts probabilities for X and compares the argmax classes with
// y. classNames labels the classes in index order; when nil the indices are
// used. Record counts and timing are filled in by the caller.
func Evaluate(clf training.Classifier, X [][]float64, y []int, classNames []string) (*Report, error) {
	log := logger.WithComponent("evaluation")

	if clf == nil {
		return nil, fmt.Errorf("no classifier to evaluate")
	}
	if len(X) == 0 {
		return nil, fmt.Errorf("empty test set")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("feature and label count mismatch: %d features, %d labels", len(X), len(y))
	}

	numClasses := clf.NumClasses()
	if classNames == nil {
		classNames = make([]string, numClasses)
		for i := range classNames {
			classNames[i] = strconv.Itoa(i)
		}
	}
	if len(classNames) != numClasses {
		return nil, fmt.Errorf("%d class names for %d classes", len(classNames), numClasses)
	}

	proba, err := clf.PredictProba(X)
	if err != nil {
		return nil, fmt.Errorf("failed to predict probabilities: %w", err)
	}
	predicted := make([]int, len(proba))
	for i, p := range proba {
		if len(p) != numClasses {
			return nil, fmt.Errorf("probability row %d has %d columns, expected %d", i, len(p), numClasses)
		}
		predicted[i] = argmax(p)
	}
	for i, label := range y {
		if label < 0 || label >= numClasses {
			return nil, fmt.Errorf("label %d at sample %d is outside [0, %d)", label, i, numClasses)
		}
	}

	confusion := ConfusionMatrix(y, predicted, numClasses)
	classification := classificationReport(confusion, classNames)

	report := &Report{
		ModelType:      string(clf.Type()),
		Accuracy:       round(classification.Accuracy, 4),
		Precision:      round(classification.WeightedAvg.Precision, 4),
		Recall:         round(classification.WeightedAvg.Recall, 4),
		F1Score:        round(classification.WeightedAvg.F1Score, 4),
		Confusion:      confusion,
		Classification: classification,
		Classes:        append([]string(nil), classNames...),
	}

	if auc, ok := AUC(y, proba, numClasses); ok {
		rounded := round(auc, 4)
		report.AUC = &rounded
	} else {
		log.Warn().Msg("Test labels hold a single class, AUC is undefined")
	}

	log.Info().
		Float64("accuracy", report.Accuracy).
		Float64("precision", report.Precision).
		Float64("recall", report.Recall).
		Float64("f1_score", report.F1Score).
		Msg("Model evaluated")
	return report, nil
}

// ConfusionMatrix counts (true, predicted) pairs. Rows are true classes.
func ConfusionMatrix(actual, predicted []int, numClasses int) [][]int {
	m := make([][]int, numClasses)
	for i := range m {
		m[i] = make([]int, numClasses)
	}
	for i := range actual {
		m[actual[i]][predicted[i]]++
	}
	return m
}

// classificationReport derives per-class, macro and support-weighted scores
// from a confusion matrix. A zero denominator yields 0.
func classificationReport(confusion [][]int, labels []string) ClassificationReport {
	k := len(confusion)
	report := ClassificationReport{
		Labels:   append([]string(nil), labels...),
		PerClass: make([]ClassMetrics, k),
	}

	colSums := make([]int, k)
	total, correct := 0, 0
	for i, row := range confusion {
		for j, v := range row {
			colSums[j] += v
			total += v
			if i == j {
				correct += v
			}
		}
	}

	var macro, weighted ClassMetrics
	for c := 0; c < k; c++ {
		support := 0
		for _, v := range confusion[c] {
			support += v
		}
		tp := confusion[c][c]
		precision := safeDiv(float64(tp), float64(colSums[c]))
		recall := safeDiv(float64(tp), float64(support))
		f1 := safeDiv(2*precision*recall, precision+recall)

		report.PerClass[c] = ClassMetrics{Precision: precision, Recall: recall, F1Score: f1, Support: support}

		macro.Precision += precision
		macro.Recall += recall
		macro.F1Score += f1
		weighted.Precision += precision * float64(support)
		weighted.Recall += recall * float64(support)
		weighted.F1Score += f1 * float64(support)
	}

	macro.Precision /= float64(k)
	macro.Recall /= float64(k)
	macro.F1Score /= float64(k)
	macro.Support = total
	weighted.Precision = safeDiv(weighted.Precision, float64(total))
	weighted.Recall = safeDiv(weighted.Recall, float64(total))
	weighted.F1Score = safeDiv(weighted.F1Score, float64(total))
	weighted.Support = total

	report.Accuracy = safeDiv(float64(correct), float64(total))
	report.MacroAvg = macro
	report.WeightedAvg = weighted
	return report
}

func safeDiv(num, den float64) float64 {
	if den == 0 || math.IsNaN(num) {
		return 0
	}
	return num / den
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
