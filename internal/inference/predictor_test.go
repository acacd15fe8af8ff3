package inference

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/parity-ids/internal/artifact"
	"github.com/theblitlabs/parity-ids/internal/execution/training"
	"github.com/theblitlabs/parity-ids/internal/mocks"
	"github.com/theblitlabs/parity-ids/internal/preprocess"
	"github.com/theblitlabs/parity-ids/internal/scaler"
	"github.com/theblitlabs/parity-ids/internal/testutil"
	"github.com/theblitlabs/parity-ids/internal/utils/errorutil"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)

func mockSet(model *mocks.MockClassifier, classes ...string) *artifact.Set {
	reg := preprocess.NewRegistry()
	reg.Columns["protocol_type"] = preprocess.FitEncoder([]string{"tcp", "udp", "icmp"})
	if len(classes) > 0 {
		reg.Target = preprocess.FitEncoder(classes)
	}
	return &artifact.Set{
		RunID:    "run-1",
		Model:    model,
		Scaler:   &scaler.StandardScaler{Features: []string{"duration", "protocol_type"}, Mean: []float64{10, 1}, Std: []float64{5, 1}},
		Encoders: reg,
	}
}

func newMockPredictor(model *mocks.MockClassifier, classes ...string) *Predictor {
	p := NewPredictor(mockSet(model, classes...))
	p.now = func() time.Time { return fixedNow }
	return p
}

func TestPredictBinary(t *testing.T) {
	testutil.DisableLogging()

	model := new(mocks.MockClassifier)
	model.On("Fitted").Return(true)
	// duration 20 -> (20-10)/5, udp is code 2 -> (2-1)/1
	model.On("PredictProba", [][]float64{{2, 1}}).Return([][]float64{{0.3, 0.7}}, nil)

	p := newMockPredictor(model, "attack", "normal")
	result, err := p.Predict(map[string]interface{}{
		"duration":      json.Number("20"),
		"protocol_type": "udp",
		"ignored":       "extra keys are fine",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Prediction)
	assert.Equal(t, 0.7, result.Probability)
	assert.Equal(t, "normal", result.Label)
	assert.Equal(t, fixedNow, result.Timestamp)
	model.AssertExpectations(t)
}

func TestPredictBinaryReportsPositiveClassProbability(t *testing.T) {
	testutil.DisableLogging()

	model := new(mocks.MockClassifier)
	model.On("Fitted").Return(true)
	model.On("PredictProba", mock.Anything).Return([][]float64{{0.9, 0.1}}, nil)

	result, err := newMockPredictor(model, "attack", "normal").Predict(map[string]interface{}{
		"duration": 10.0, "protocol_type": "tcp",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Prediction)
	assert.Equal(t, "attack", result.Label)
	assert.Equal(t, 0.1, result.Probability)
}

func TestPredictMultiClass(t *testing.T) {
	testutil.DisableLogging()

	model := new(mocks.MockClassifier)
	model.On("Fitted").Return(true)
	model.On("PredictProba", mock.Anything).Return([][]float64{{0.2, 0.5, 0.3}}, nil)

	result, err := newMockPredictor(model, "dos", "normal", "r2l").Predict(map[string]interface{}{
		"duration": "3", "protocol_type": "icmp",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Prediction)
	assert.Equal(t, 0.5, result.Probability)
	assert.Equal(t, "normal", result.Label)
}

func TestPredictNumericTargetLabel(t *testing.T) {
	testutil.DisableLogging()

	model := new(mocks.MockClassifier)
	model.On("Fitted").Return(true)
	model.On("PredictProba", mock.Anything).Return([][]float64{{0.4, 0.6}}, nil)

	result, err := newMockPredictor(model).Predict(map[string]interface{}{
		"duration": 1, "protocol_type": "tcp",
	})
	require.NoError(t, err)
	assert.Equal(t, "1", result.Label)
}

func TestPredictSchemaErrors(t *testing.T) {
	testutil.DisableLogging()

	tests := []struct {
		name   string
		record map[string]interface{}
	}{
		{"nil record", nil},
		{"missing column", map[string]interface{}{"duration": 1}},
		{"null value", map[string]interface{}{"duration": nil, "protocol_type": "tcp"}},
		{"unseen category", map[string]interface{}{"duration": 1, "protocol_type": "sctp"}},
		{"non-numeric value", map[string]interface{}{"duration": "long", "protocol_type": "tcp"}},
		{"nested value", map[string]interface{}{"duration": []interface{}{1}, "protocol_type": "tcp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := new(mocks.MockClassifier)
			model.On("Fitted").Return(true)

			result, err := newMockPredictor(model, "attack", "normal").Predict(tt.record)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, errorutil.ErrInvalidInputSchema)
			model.AssertNotCalled(t, "PredictProba", mock.Anything)
		})
	}
}

func TestPredictWithoutModel(t *testing.T) {
	testutil.DisableLogging()
	record := map[string]interface{}{"duration": 1, "protocol_type": "tcp"}

	var nilPredictor *Predictor
	_, err := nilPredictor.Predict(record)
	assert.ErrorIs(t, err, errorutil.ErrModelNotTrained)

	_, err = NewPredictor(nil).Predict(record)
	assert.ErrorIs(t, err, errorutil.ErrModelNotTrained)

	unfitted := new(mocks.MockClassifier)
	unfitted.On("Fitted").Return(false)
	_, err = NewPredictor(mockSet(unfitted)).Predict(record)
	assert.ErrorIs(t, err, errorutil.ErrModelNotTrained)

	assert.Equal(t, "", NewPredictor(nil).ModelType())
}

func TestPredictModelFailure(t *testing.T) {
	testutil.DisableLogging()

	model := new(mocks.MockClassifier)
	model.On("Fitted").Return(true)
	model.On("PredictProba", mock.Anything).Return(nil, errors.New("boom"))

	_, err := newMockPredictor(model).Predict(map[string]interface{}{"duration": 1, "protocol_type": "tcp"})
	assert.ErrorContains(t, err, "boom")
}

func TestLoadMissingArtifacts(t *testing.T) {
	testutil.DisableLogging()

	p, err := Load(filepath.Join(t.TempDir(), "absent"))
	assert.Nil(t, p)
	assert.ErrorIs(t, err, errorutil.ErrArtifactLoad)
}

func TestResultJSON(t *testing.T) {
	data, err := json.Marshal(Result{Prediction: 1, Probability: 0.75, Label: "attack", Timestamp: fixedNow})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, map[string]interface{}{
		"prediction":  1.0,
		"probability": 0.75,
		"label":       "attack",
		"timestamp":   "2026-03-04T05:06:07.123456789Z",
	}, decoded)
}

func TestDecodeRecord(t *testing.T) {
	record, err := DecodeRecord([]byte(`{"duration": 12, "protocol_type": "tcp", "flag": null}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("12"), record["duration"])
	assert.Equal(t, "tcp", record["protocol_type"])
	assert.Contains(t, record, "flag")

	for _, input := range []string{``, `null`, `[1, 2]`, `"tcp"`, `{"a": 1`, `{"a": 1} {"b": 2}`} {
		_, err := DecodeRecord([]byte(input))
		assert.ErrorIs(t, err, errorutil.ErrInvalidInputSchema, "input %q", input)
	}
}

func TestModelType(t *testing.T) {
	model := new(mocks.MockClassifier)
	model.On("Type").Return(training.ModelTypeSVM)
	assert.Equal(t, "svm", NewPredictor(mockSet(model)).ModelType())
}
