// Package artifact persists the model, scaler and encoder registry of a
// training run as three sibling files sharing one path prefix.
package artifact

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theblitlabs/parity-ids/internal/execution/training"
	"github.com/theblitlabs/parity-ids/internal/preprocess"
	"github.com/theblitlabs/parity-ids/internal/scaler"
	"github.com/theblitlabs/parity-ids/internal/utils/errorutil"
	"github.com/theblitlabs/parity-ids/pkg/logger"
)

const (
	ModelExt    = ".model"
	ScalerExt   = ".scaler"
	EncodersExt = ".encoders"

	fileMode os.FileMode = 0o644
)

// Set is the persisted state needed to reproduce predictions. All parts
// come from the same training run, identified by RunID.
type Set struct {
	RunID     string
	CreatedAt time.Time
	Model     training.Classifier
	Scaler    *scaler.StandardScaler
	Encoders  *preprocess.Registry
}

// Features returns the ordered feature names the model expects.
func (s *Set) Features() []string {
	if s == nil || s.Scaler == nil {
		return nil
	}
	return s.Scaler.Features
}

// Paths returns the model, scaler and encoder file names for prefix.
func Paths(prefix string) (model, scalerPath, encoders string) {
	return prefix + ModelExt, prefix + ScalerExt, prefix + EncodersExt
}

type modelEnvelope struct {
	Type        training.ModelType
	RunID       string
	CreatedAt   time.Time
	NumFeatures int
	NumClasses  int
	State       []byte
}

type scalerFile struct {
	RunID string `json:"run_id"`
	*scaler.StandardScaler
}

type encodersFile struct {
	RunID string `json:"run_id"`
	*preprocess.Registry
}

// Save writes the three parts of s under prefix, creating parent
// directories. Each file is written to a temporary sibling and renamed.
func Save(s *Set, prefix string) error {
	log := logger.WithComponent("artifact")

	if err := s.validate(); err != nil {
		return fmt.Errorf("refusing to save artifact set: %w", err)
	}
	if dir := filepath.Dir(prefix); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
		}
	}

	var state bytes.Buffer
	if err := gob.NewEncoder(&state).Encode(s.Model); err != nil {
		return fmt.Errorf("failed to encode %s model: %w", s.Model.Type(), err)
	}
	envelope := modelEnvelope{
		Type:        s.Model.Type(),
		RunID:       s.RunID,
		CreatedAt:   s.CreatedAt,
		NumFeatures: s.Model.NumFeatures(),
		NumClasses:  s.Model.NumClasses(),
		State:       state.Bytes(),
	}
	var model bytes.Buffer
	if err := gob.NewEncoder(&model).Encode(envelope); err != nil {
		return fmt.Errorf("failed to encode model envelope: %w", err)
	}

	scalerData, err := json.MarshalIndent(scalerFile{RunID: s.RunID, StandardScaler: s.Scaler}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode scaler: %w", err)
	}
	encodersData, err := json.MarshalIndent(encodersFile{RunID: s.RunID, Registry: s.Encoders}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode encoders: %w", err)
	}

	modelPath, scalerPath, encodersPath := Paths(prefix)
	for _, part := range []struct {
		path string
		data []byte
	}{
		{modelPath, model.Bytes()},
		{scalerPath, scalerData},
		{encodersPath, encodersData},
	} {
		if err := writeFileAtomic(part.path, part.data); err != nil {
			log.Error().Err(err).Str("path", part.path).Msg("Failed to write artifact")
			return err
		}
	}

	log.Info().
		Str("prefix", prefix).
		Str("run_id", s.RunID).
		Str("model_type", string(s.Model.Type())).
		Msg("Artifact set saved")
	return nil
}

// Load reads the artifact set stored under prefix. Any missing, corrupt or
// inconsistent part fails the whole load with ErrArtifactLoad.
func Load(prefix string) (*Set, error) {
	log := logger.WithComponent("artifact")

	set, err := load(prefix)
	if err != nil {
		log.Error().Err(err).Str("prefix", prefix).Msg("Failed to load artifact set")
		return nil, err
	}

	log.Info().
		Str("prefix", prefix).
		Str("run_id", set.RunID).
		Str("model_type", string(set.Model.Type())).
		Int("features", len(set.Features())).
		Msg("Artifact set loaded")
	return set, nil
}

func load(prefix string) (*Set, error) {
	modelPath, scalerPath, encodersPath := Paths(prefix)

	modelData, err := readPart(modelPath)
	if err != nil {
		return nil, err
	}
	scalerData, err := readPart(scalerPath)
	if err != nil {
		return nil, err
	}
	encodersData, err := readPart(encodersPath)
	if err != nil {
		return nil, err
	}

	var envelope modelEnvelope
	if err := gob.NewDecoder(bytes.NewReader(modelData)).Decode(&envelope); err != nil {
		return nil, errorutil.Wrap(errorutil.ErrArtifactLoad, err, "corrupt model file %s", modelPath)
	}
	model, err := training.NewEmpty(envelope.Type)
	if err != nil {
		return nil, errorutil.Wrap(errorutil.ErrArtifactLoad, err, "model file %s", modelPath)
	}
	if err := gob.NewDecoder(bytes.NewReader(envelope.State)).Decode(model); err != nil {
		return nil, errorutil.Wrap(errorutil.ErrArtifactLoad, err, "corrupt %s state in %s", envelope.Type, modelPath)
	}

	sf := scalerFile{StandardScaler: &scaler.StandardScaler{}}
	if err := json.Unmarshal(scalerData, &sf); err != nil {
		return nil, errorutil.Wrap(errorutil.ErrArtifactLoad, err, "corrupt scaler file %s", scalerPath)
	}
	ef := encodersFile{Registry: preprocess.NewRegistry()}
	if err := json.Unmarshal(encodersData, &ef); err != nil {
		return nil, errorutil.Wrap(errorutil.ErrArtifactLoad, err, "corrupt encoders file %s", encodersPath)
	}
	if ef.Columns == nil {
		ef.Columns = make(map[string]*preprocess.Encoder)
	}

	if sf.RunID != envelope.RunID || ef.RunID != envelope.RunID {
		return nil, errorutil.New(errorutil.ErrArtifactLoad,
			"artifact parts come from different runs (model %q, scaler %q, encoders %q)",
			envelope.RunID, sf.RunID, ef.RunID)
	}
	if model.NumFeatures() != envelope.NumFeatures || model.NumClasses() != envelope.NumClasses {
		return nil, errorutil.New(errorutil.ErrArtifactLoad, "model state does not match its envelope in %s", modelPath)
	}

	set := &Set{
		RunID:     envelope.RunID,
		CreatedAt: envelope.CreatedAt,
		Model:     model,
		Scaler:    sf.StandardScaler,
		Encoders:  ef.Registry,
	}
	if err := set.validate(); err != nil {
		return nil, errorutil.Wrap(errorutil.ErrArtifactLoad, err, "inconsistent artifact set %s", prefix)
	}
	return set, nil
}

// validate checks that the parts of s fit together.
func (s *Set) validate() error {
	if s == nil || s.Model == nil || s.Scaler == nil || s.Encoders == nil {
		return errors.New("artifact set is incomplete")
	}
	if !s.Model.Fitted() {
		return errorutil.New(errorutil.ErrModelNotTrained, "%s model is not fitted", s.Model.Type())
	}
	if !s.Scaler.Fitted() {
		return errorutil.New(errorutil.ErrModelNotTrained, "scaler is not fitted")
	}

	n := s.Model.NumFeatures()
	if len(s.Scaler.Features) != n || len(s.Scaler.Mean) != n || len(s.Scaler.Std) != n {
		return fmt.Errorf("model expects %d features, scaler has %d names, %d means, %d deviations",
			n, len(s.Scaler.Features), len(s.Scaler.Mean), len(s.Scaler.Std))
	}
	known := make(map[string]bool, n)
	for _, f := range s.Scaler.Features {
		known[f] = true
	}
	for name := range s.Encoders.Columns {
		if !known[name] {
			return fmt.Errorf("encoder for unknown feature %q", name)
		}
	}
	if s.Encoders.Target != nil && s.Encoders.Target.Len() != s.Model.NumClasses() {
		return fmt.Errorf("target encoder has %d classes, model has %d", s.Encoders.Target.Len(), s.Model.NumClasses())
	}
	return nil
}

func readPart(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errorutil.Wrap(errorutil.ErrArtifactLoad, err, "missing artifact part %s", path)
	}
	if len(data) == 0 {
		return nil, errorutil.New(errorutil.ErrArtifactLoad, "artifact part %s is empty", path)
	}
	return data, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
