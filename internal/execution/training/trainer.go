package training

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/theblitlabs/parity-ids/internal/utils/errorutil"
)

// ModelType is the classifier selector accepted by the train command.
type ModelType string

const (
	ModelTypeRandomForest  ModelType = "random_forest"
	ModelTypeSVM           ModelType = "svm"
	ModelTypeNeuralNetwork ModelType = "neural_network"
)

// ModelTypes lists the supported selectors in a stable order.
func ModelTypes() []ModelType {
	return []ModelType{ModelTypeRandomForest, ModelTypeSVM, ModelTypeNeuralNetwork}
}

// ParseModelType validates a selector string.
func ParseModelType(s string) (ModelType, error) {
	switch mt := ModelType(strings.TrimSpace(s)); mt {
	case ModelTypeRandomForest, ModelTypeSVM, ModelTypeNeuralNetwork:
		return mt, nil
	default:
		return "", errorutil.New(errorutil.ErrUnknownModelType, "%q (supported: random_forest, svm, neural_network)", s)
	}
}

// Classifier is a fitted-once multi-class probabilistic classifier. Class
// labels are indices in [0, numClasses).
type Classifier interface {
	Type() ModelType

	// Fit trains the classifier on scaled features.
	Fit(ctx context.Context, features [][]float64, labels []int, numClasses int) error

	// Predict returns the most probable class per row.
	Predict(features [][]float64) ([]int, error)

	// PredictProba returns one probability row of length NumClasses per input row.
	PredictProba(features [][]float64) ([][]float64, error)

	NumFeatures() int
	NumClasses() int
	Fitted() bool
}

// ImportanceReporter is implemented by classifiers that can rank their
// input features.
type ImportanceReporter interface {
	FeatureImportances() []float64
}

// Config holds the hyperparameters of every supported classifier.
type Config struct {
	RandomForest  RandomForestConfig  `mapstructure:"random_forest" json:"random_forest"`
	SVM           SVMConfig           `mapstructure:"svm" json:"svm"`
	NeuralNetwork NeuralNetworkConfig `mapstructure:"neural_network" json:"neural_network"`
}

// DefaultConfig returns the documented defaults for every classifier.
func DefaultConfig() Config {
	return Config{
		RandomForest:  DefaultRandomForestConfig(),
		SVM:           DefaultSVMConfig(),
		NeuralNetwork: DefaultNeuralNetworkConfig(),
	}
}

// WithSeed returns a copy of c with every seeded classifier using seed.
func (c Config) WithSeed(seed int64) Config {
	c.RandomForest.RandomState = seed
	c.NeuralNetwork.RandomState = seed
	return c
}

// NewClassifier creates an unfitted classifier for the given selector.
func NewClassifier(modelType string, cfg Config) (Classifier, error) {
	mt, err := ParseModelType(modelType)
	if err != nil {
		return nil, err
	}

	switch mt {
	case ModelTypeRandomForest:
		return NewRandomForestClassifier(cfg.RandomForest), nil
	case ModelTypeSVM:
		return NewSVMClassifier(cfg.SVM), nil
	default:
		return NewNeuralNetworkClassifier(cfg.NeuralNetwork), nil
	}
}

// NewEmpty returns a zero-value classifier of the given type, ready to be
// populated from persisted state.
func NewEmpty(mt ModelType) (Classifier, error) {
	switch mt {
	case ModelTypeRandomForest:
		return &RandomForestClassifier{}, nil
	case ModelTypeSVM:
		return &SVMClassifier{}, nil
	case ModelTypeNeuralNetwork:
		return &NeuralNetworkClassifier{}, nil
	default:
		return nil, errorutil.New(errorutil.ErrUnknownModelType, "%q", mt)
	}
}

// Train fits clf and returns the wall-clock fit duration.
func Train(ctx context.Context, clf Classifier, features [][]float64, labels []int, numClasses int) (time.Duration, error) {
	if err := validateTrainingData(features, labels, numClasses); err != nil {
		return 0, err
	}

	start := time.Now()
	if err := clf.Fit(ctx, features, labels, numClasses); err != nil {
		return 0, fmt.Errorf("failed to fit %s: %w", clf.Type(), err)
	}
	return time.Since(start), nil
}

func validateTrainingData(features [][]float64, labels []int, numClasses int) error {
	if len(features) == 0 || len(labels) == 0 {
		return fmt.Errorf("empty training data")
	}
	if len(features) != len(labels) {
		return fmt.Errorf("feature and label count mismatch: %d features, %d labels", len(features), len(labels))
	}
	if numClasses < 2 {
		return fmt.Errorf("at least two classes are required, got %d", numClasses)
	}

	featureDim := len(features[0])
	if featureDim == 0 {
		return fmt.Errorf("features have zero dimensions")
	}
	for i, row := range features {
		if len(row) != featureDim {
			return fmt.Errorf("inconsistent feature dimensions at sample %d: expected %d, got %d", i, featureDim, len(row))
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("input features contain NaN or Inf values at sample %d, feature %d", i, j)
			}
		}
	}
	for i, label := range labels {
		if label < 0 || label >= numClasses {
			return fmt.Errorf("label %d at sample %d is outside [0, %d)", label, i, numClasses)
		}
	}
	return nil
}

func checkPredictInput(clf Classifier, features [][]float64) error {
	if !clf.Fitted() {
		return errorutil.New(errorutil.ErrModelNotTrained, "%s has not been fitted", clf.Type())
	}
	for i, row := range features {
		if len(row) != clf.NumFeatures() {
			return fmt.Errorf("sample %d has %d features, model expects %d", i, len(row), clf.NumFeatures())
		}
	}
	return nil
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

func predictFromProba(clf Classifier, features [][]float64) ([]int, error) {
	proba, err := clf.PredictProba(features)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		out[i] = argmax(p)
	}
	return out, nil
}
