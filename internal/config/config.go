package config

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"

	"github.com/theblitlabs/parity-ids/internal/execution/training"
	"github.com/theblitlabs/parity-ids/internal/preprocess"
)

type Config struct {
	Training TrainingConfig  `mapstructure:"training" json:"training"`
	Model    training.Config `mapstructure:"model" json:"model"`
	Metrics  MetricsConfig   `mapstructure:"metrics" json:"metrics"`
	Logging  LoggingConfig   `mapstructure:"logging" json:"logging"`
}

type TrainingConfig struct {
	TargetColumn string  `mapstructure:"target_column" json:"target_column"`
	TestSize     float64 `mapstructure:"test_size" json:"test_size"`
	Seed         int64   `mapstructure:"seed" json:"seed"`
}

type MetricsConfig struct {
	// Textfile is the path of the Prometheus textfile written after each
	// command. Empty disables it.
	Textfile string `mapstructure:"textfile" json:"textfile"`
}

type LoggingConfig struct {
	Mode string `mapstructure:"mode" json:"mode"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Training: TrainingConfig{
			TargetColumn: preprocess.DefaultTargetColumn,
			TestSize:     0.2,
			Seed:         42,
		},
		Model:   training.DefaultConfig(),
		Logging: LoggingConfig{Mode: "pretty"},
	}
}

// LoadConfig reads an optional YAML (or any viper-supported) file over the
// defaults. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults, err := defaultsMap()
	if err != nil {
		return nil, err
	}
	if err := v.MergeConfigMap(defaults); err != nil {
		return nil, fmt.Errorf("failed to apply default config: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Training.TargetColumn == "" {
		return fmt.Errorf("training.target_column must not be empty")
	}
	if c.Training.TestSize <= 0 || c.Training.TestSize >= 1 {
		return fmt.Errorf("training.test_size must be in (0, 1), got %v", c.Training.TestSize)
	}
	for _, units := range c.Model.NeuralNetwork.HiddenLayers {
		if units <= 0 {
			return fmt.Errorf("model.neural_network.hidden_layers must be positive, got %v", c.Model.NeuralNetwork.HiddenLayers)
		}
	}
	if c.Model.SVM.C <= 0 {
		return fmt.Errorf("model.svm.c must be positive, got %v", c.Model.SVM.C)
	}
	return nil
}

// defaultsMap renders Default as the nested map viper merges configs into.
func defaultsMap() (map[string]interface{}, error) {
	data, err := json.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to encode default config: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode default config: %w", err)
	}
	return m, nil
}
