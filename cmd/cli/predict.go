package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/theblitlabs/parity-ids/internal/inference"
	"github.com/theblitlabs/parity-ids/internal/monitoring/metrics"
	"github.com/theblitlabs/parity-ids/internal/utils/cliutil"
	"github.com/theblitlabs/parity-ids/pkg/logger"
)

func newPredictCommand(log zerolog.Logger) *cobra.Command {
	return cliutil.CreateCommand(cliutil.CommandConfig{
		Use:     "predict <model_path> <data_json>",
		Short:   "Score one JSON record with a saved artifact set",
		Example: `parity-ids predict models/ids '{"duration":0,"protocol_type":"tcp","src_bytes":181}'`,
		Args:    cobra.ExactArgs(2),
		RunFunc: RunPredict,
	}, log)
}

// RunPredict executes `predict <model_path> <data_json>`.
func RunPredict(cmd *cobra.Command, args []string) error {
	log := cmdLogger(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rec := metrics.NewRecorder("")
	defer flushMetrics(cfg, rec)

	stop := rec.StartStage("load")
	predictor, err := inference.Load(args[0])
	stop()
	if err != nil {
		rec.IncError("load", err)
		return err
	}
	rec.SetModelType(predictor.ModelType())

	record, err := inference.DecodeRecord([]byte(args[1]))
	if err != nil {
		rec.IncError("predict", err)
		return err
	}

	stop = rec.StartStage("predict")
	result, err := predictor.Predict(record)
	stop()
	if err != nil {
		rec.IncError("predict", err)
		return err
	}
	rec.IncPrediction(result.Label)

	log.Debug().Str("model", args[0]).Int("prediction", result.Prediction).Msg("Prediction complete")
	return writeResult(cmd.OutOrStdout(), result)
}

func cmdLogger(cmd *cobra.Command) zerolog.Logger {
	return logger.WithComponent("cli").With().Str("command", cmd.Name()).Logger()
}
