package errorutil

import (
	"errors"
	"fmt"
)

// Error kinds raised by the training and inference pipeline. Callers match
// them with errors.Is; the concrete cause stays reachable through the chain.
var (
	ErrDatasetLoad        = errors.New("dataset load error")
	ErrPreprocess         = errors.New("preprocess error")
	ErrUnknownModelType   = errors.New("unknown model type")
	ErrModelNotTrained    = errors.New("model not trained")
	ErrArtifactLoad       = errors.New("artifact load error")
	ErrInvalidInputSchema = errors.New("invalid input schema")
)

// New returns an error of the given kind with a formatted message.
func New(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Wrap tags err with kind and a formatted message. Both kind and err match errors.Is.
func Wrap(kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", kind, fmt.Sprintf(format, args...), err)
}

// Kind reports which pipeline error kind err belongs to, or "internal".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrDatasetLoad):
		return "dataset_load"
	case errors.Is(err, ErrPreprocess):
		return "preprocess"
	case errors.Is(err, ErrUnknownModelType):
		return "unknown_model_type"
	case errors.Is(err, ErrModelNotTrained):
		return "model_not_trained"
	case errors.Is(err, ErrArtifactLoad):
		return "artifact_load"
	case errors.Is(err, ErrInvalidInputSchema):
		return "invalid_input_schema"
	default:
		return "internal"
	}
}
