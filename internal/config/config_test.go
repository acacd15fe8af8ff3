package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "label", cfg.Training.TargetColumn)
	assert.Equal(t, 0.2, cfg.Training.TestSize)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.Equal(t, 100, cfg.Model.RandomForest.NumTrees)
	assert.Equal(t, []int{128, 64, 32}, cfg.Model.NeuralNetwork.HiddenLayers)
	assert.Equal(t, "scale", cfg.Model.SVM.Gamma)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, "ids.yaml", `
training:
  test_size: 0.3
  seed: 7
model:
  random_forest:
    num_trees: 50
  neural_network:
    hidden_layers: [32, 16]
metrics:
  textfile: /var/lib/node_exporter/parity_ids.prom
logging:
  mode: prod
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "label", cfg.Training.TargetColumn)
	assert.Equal(t, 0.3, cfg.Training.TestSize)
	assert.Equal(t, int64(7), cfg.Training.Seed)
	assert.Equal(t, 50, cfg.Model.RandomForest.NumTrees)
	assert.Equal(t, 20, cfg.Model.RandomForest.MaxDepth)
	assert.Equal(t, []int{32, 16}, cfg.Model.NeuralNetwork.HiddenLayers)
	assert.Equal(t, 200, cfg.Model.NeuralNetwork.MaxIter)
	assert.Equal(t, 1.0, cfg.Model.SVM.C)
	assert.Equal(t, "/var/lib/node_exporter/parity_ids.prom", cfg.Metrics.Textfile)
	assert.Equal(t, "prod", cfg.Logging.Mode)
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeConfig(t, "ids.json", `{"training": {"target_column": "class"}}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "class", cfg.Training.TargetColumn)
	assert.Equal(t, 0.2, cfg.Training.TestSize)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.yaml") },
			wantErr: "failed to read config file",
		},
		{
			name:    "malformed yaml",
			path:    func(t *testing.T) string { return writeConfig(t, "bad.yaml", "training: [") },
			wantErr: "failed to read config file",
		},
		{
			name:    "test size out of range",
			path:    func(t *testing.T) string { return writeConfig(t, "c.yaml", "training:\n  test_size: 1.5\n") },
			wantErr: "test_size",
		},
		{
			name:    "empty target",
			path:    func(t *testing.T) string { return writeConfig(t, "c.yaml", "training:\n  target_column: \"\"\n") },
			wantErr: "target_column",
		},
		{
			name:    "non-positive hidden layer",
			path:    func(t *testing.T) string { return writeConfig(t, "c.yaml", "model:\n  neural_network:\n    hidden_layers: [8, 0]\n") },
			wantErr: "hidden_layers",
		},
		{
			name:    "non-positive svm c",
			path:    func(t *testing.T) string { return writeConfig(t, "c.yaml", "model:\n  svm:\n    c: -1\n") },
			wantErr: "svm.c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(tt.path(t))
			assert.Nil(t, cfg)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
