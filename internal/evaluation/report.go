package evaluation

import (
	"encoding/json"
	"math"
	"sort"
)

// Report is the immutable result of scoring one trained model on its test
// split. JSON field names follow the train command's output contract.
type Report struct {
	ModelType      string               `json:"model_type"`
	RunID          string               `json:"run_id,omitempty"`
	TrainingTime   float64              `json:"training_time"`
	Accuracy       float64              `json:"accuracy"`
	Precision      float64              `json:"precision"`
	Recall         float64              `json:"recall"`
	F1Score        float64              `json:"f1_score"`
	AUC            *float64             `json:"auc"`
	Confusion      [][]int              `json:"confusion_matrix"`
	Classification ClassificationReport `json:"classification_report"`
	Classes        []string             `json:"classes"`
	TotalRecords   int                  `json:"total_records"`
	TrainRecords   int                  `json:"training_records"`
	TestRecords    int                  `json:"testing_records"`

	// FeatureImportances is set for models that rank their features.
	FeatureImportances []FeatureImportance `json:"feature_importances,omitempty"`
}

// FeatureImportance is the share of a feature in the model's decisions.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// RankFeatures pairs importances with feature names, most important first.
// Ties keep the feature order. Nil is returned when the lengths differ.
func RankFeatures(features []string, importances []float64) []FeatureImportance {
	if len(features) == 0 || len(features) != len(importances) {
		return nil
	}
	ranked := make([]FeatureImportance, len(features))
	for i, name := range features {
		ranked[i] = FeatureImportance{Feature: name, Importance: round(importances[i], 4)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Importance > ranked[j].Importance
	})
	return ranked
}

// ClassMetrics are the per-class scores of a classification report.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// ClassificationReport holds per-class metrics keyed by class label, plus
// overall accuracy and macro/weighted averages.
type ClassificationReport struct {
	Labels      []string
	PerClass    []ClassMetrics
	Accuracy    float64
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
}

// ForClass returns the metrics of a class label.
func (r ClassificationReport) ForClass(label string) (ClassMetrics, bool) {
	for i, l := range r.Labels {
		if l == label {
			return r.PerClass[i], true
		}
	}
	return ClassMetrics{}, false
}

// MarshalJSON renders the report as one object: a key per class label, then
// "accuracy", "macro avg" and "weighted avg".
func (r ClassificationReport) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Labels)+3)
	for i, label := range r.Labels {
		out[label] = r.PerClass[i]
	}
	out["accuracy"] = r.Accuracy
	out["macro avg"] = r.MacroAvg
	out["weighted avg"] = r.WeightedAvg
	return json.Marshal(out)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
