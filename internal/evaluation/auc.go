package evaluation

import (
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// AUC returns the area under the ROC curve. Binary models are scored on the
// probability of class 1; with more classes the one-vs-rest curves of the
// classes present in y are macro-averaged. ok is false when y holds fewer
// than two distinct classes.
func AUC(y []int, proba [][]float64, numClasses int) (auc float64, ok bool) {
	present := make(map[int]bool)
	for _, label := range y {
		present[label] = true
	}
	if len(present) < 2 {
		return 0, false
	}

	if numClasses == 2 {
		return binaryAUC(y, proba, 1), true
	}

	var sum float64
	var n int
	for c := 0; c < numClasses; c++ {
		if !present[c] {
			continue
		}
		sum += binaryAUC(y, proba, c)
		n++
	}
	return sum / float64(n), true
}

// binaryAUC scores class positive against the rest using its probability column.
func binaryAUC(y []int, proba [][]float64, positive int) float64 {
	scores := make([]float64, len(y))
	classes := make([]bool, len(y))
	for i, label := range y {
		scores[i] = proba[i][positive]
		classes[i] = label == positive
	}
	stat.SortWeightedLabeled(scores, classes, nil)

	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
