package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/theblitlabs/parity-ids/internal/monitoring/metrics"
	"github.com/theblitlabs/parity-ids/internal/pipeline"
	"github.com/theblitlabs/parity-ids/internal/utils/cliutil"
)

func newTrainCommand(log zerolog.Logger) *cobra.Command {
	return cliutil.CreateCommand(cliutil.CommandConfig{
		Use:     "train <dataset_path> <model_type> <output_path>",
		Short:   "Train and evaluate a classifier, then save its artifact set",
		Long:    `Loads a CSV dataset, trains random_forest, svm or neural_network on a stratified split, prints the evaluation report as JSON and writes <output_path>.model, .scaler and .encoders`,
		Example: "parity-ids train traffic.csv random_forest models/ids",
		Args:    cobra.ExactArgs(3),
		RunFunc: RunTrain,
		Flags: map[string]cliutil.Flag{
			"target": {
				Type:          cliutil.FlagTypeString,
				Description:   "Name of the label column (default from config: label); a numeric label must hold the class indices 0..K-1",
				DefaultString: "",
			},
			"test-size": {
				Type:           cliutil.FlagTypeFloat64,
				Description:    "Fraction of records held out for evaluation (default from config: 0.2)",
				DefaultFloat64: 0,
			},
			"seed": {
				Type:         cliutil.FlagTypeInt64,
				Description:  "Random seed for the split and the seeded models (default from config: 42)",
				DefaultInt64: 0,
			},
		},
	}, log)
}

// RunTrain executes `train <dataset_path> <model_type> <output_path>`.
func RunTrain(cmd *cobra.Command, args []string) error {
	log := cmdLogger(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	datasetPath, modelType, outputPath := args[0], args[1], args[2]
	opts := pipeline.Options{
		DatasetPath:  datasetPath,
		ModelType:    modelType,
		TargetColumn: cfg.Training.TargetColumn,
		TestSize:     cfg.Training.TestSize,
		Seed:         cfg.Training.Seed,
		Model:        cfg.Model,
		Metrics:      metrics.NewRecorder(modelType),
	}
	if cmd.Flags().Changed("target") {
		opts.TargetColumn, _ = cmd.Flags().GetString("target")
	}
	if cmd.Flags().Changed("test-size") {
		opts.TestSize, _ = cmd.Flags().GetFloat64("test-size")
	}
	if cmd.Flags().Changed("seed") {
		opts.Seed, _ = cmd.Flags().GetInt64("seed")
	}
	defer flushMetrics(cfg, opts.Metrics)

	log.Info().
		Str("dataset", datasetPath).
		Str("model_type", modelType).
		Str("output", outputPath).
		Msg("Starting training run")

	engine, report, err := pipeline.Train(cmd.Context(), opts)
	if err != nil {
		return err
	}
	if err := engine.Save(outputPath); err != nil {
		opts.Metrics.IncError("save", err)
		return err
	}

	log.Info().
		Str("run_id", engine.RunID()).
		Float64("accuracy", report.Accuracy).
		Msg("Training run complete")
	return writeResult(cmd.OutOrStdout(), report)
}
