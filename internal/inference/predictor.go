// Package inference replays preprocessing and scaling for a single raw
// record and scores it with a persisted model.
package inference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/theblitlabs/parity-ids/internal/artifact"
	"github.com/theblitlabs/parity-ids/internal/utils/errorutil"
	"github.com/theblitlabs/parity-ids/pkg/logger"
)

// Result is the outcome of scoring one record.
type Result struct {
	Prediction  int       `json:"prediction"`
	Probability float64   `json:"probability"`
	Label       string    `json:"label"`
	Timestamp   time.Time `json:"timestamp"`
}

// MarshalJSON renders the timestamp with nanosecond precision.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{alias(r), r.Timestamp.Format(time.RFC3339Nano)})
}

// Predictor scores records against a loaded artifact set.
type Predictor struct {
	set *artifact.Set
	now func() time.Time
}

// NewPredictor wraps an artifact set. A nil set is accepted; Predict then
// reports that no model is loaded.
func NewPredictor(set *artifact.Set) *Predictor {
	return &Predictor{set: set, now: time.Now}
}

// Load reads the artifact set stored under prefix.
func Load(prefix string) (*Predictor, error) {
	set, err := artifact.Load(prefix)
	if err != nil {
		return nil, err
	}
	return NewPredictor(set), nil
}

// ModelType returns the type of the loaded model, or "" when none is loaded.
func (p *Predictor) ModelType() string {
	if p == nil || p.set == nil || p.set.Model == nil {
		return ""
	}
	return string(p.set.Model.Type())
}

// Predict encodes, scales and scores one record. For binary models the
// probability is that of class 1; otherwise it is the probability of the
// predicted class.
func (p *Predictor) Predict(record map[string]interface{}) (*Result, error) {
	log := logger.WithComponent("inference")

	if p == nil || p.set == nil || p.set.Model == nil || p.set.Encoders == nil ||
		!p.set.Model.Fitted() || !p.set.Scaler.Fitted() {
		return nil, errorutil.New(errorutil.ErrModelNotTrained, "no trained model is loaded")
	}

	features := p.set.Features()
	if extra := extraKeys(features, record); len(extra) > 0 {
		log.Debug().Strs("keys", extra).Msg("Ignoring keys that are not model features")
	}

	row, err := p.set.Encoders.EncodeRecord(features, record)
	if err != nil {
		log.Error().Err(err).Msg("Record does not match the training schema")
		return nil, err
	}
	scaled, err := p.set.Scaler.TransformRow(row)
	if err != nil {
		return nil, fmt.Errorf("failed to scale record: %w", err)
	}

	proba, err := p.set.Model.PredictProba([][]float64{scaled})
	if err != nil {
		return nil, fmt.Errorf("failed to score record: %w", err)
	}
	probs := proba[0]

	prediction := 0
	for c := 1; c < len(probs); c++ {
		if probs[c] > probs[prediction] {
			prediction = c
		}
	}
	probability := probs[prediction]
	if len(probs) == 2 {
		probability = probs[1]
	}

	result := &Result{
		Prediction:  prediction,
		Probability: probability,
		Label:       p.set.Encoders.DecodeClass(prediction),
		Timestamp:   p.now(),
	}
	log.Info().
		Int("prediction", result.Prediction).
		Float64("probability", result.Probability).
		Str("label", result.Label).
		Msg("Record scored")
	return result, nil
}

// DecodeRecord parses a JSON object into a record, keeping numbers as
// json.Number so categorical codes keep their original text.
func DecodeRecord(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var record map[string]interface{}
	if err := dec.Decode(&record); err != nil {
		return nil, errorutil.Wrap(errorutil.ErrInvalidInputSchema, err, "record is not a JSON object")
	}
	if record == nil {
		return nil, errorutil.New(errorutil.ErrInvalidInputSchema, "record is null")
	}
	if dec.More() {
		return nil, errorutil.New(errorutil.ErrInvalidInputSchema, "record must be a single JSON object")
	}
	return record, nil
}

func extraKeys(features []string, record map[string]interface{}) []string {
	known := make(map[string]bool, len(features))
	for _, f := range features {
		known[f] = true
	}
	var extra []string
	for k := range record {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	return extra
}
