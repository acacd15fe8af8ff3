package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/parity-ids/internal/config"
	"github.com/theblitlabs/parity-ids/internal/monitoring/metrics"
	"github.com/theblitlabs/parity-ids/internal/utils/cliutil"
	"github.com/theblitlabs/parity-ids/internal/utils/configutil"
	"github.com/theblitlabs/parity-ids/pkg/logger"
)

// NewRootCommand builds the parity-ids command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "parity-ids",
		Short: "Parity IDS",
		Long:  `Train, evaluate and serve network intrusion classifiers over tabular traffic records`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				logger.InitWithMode(logger.LogModePretty)
				return err
			}
			mode := cfg.Logging.Mode
			if cmd.Flags().Changed("log") {
				mode, _ = cmd.Flags().GetString("log")
			}
			logger.InitWithMode(logger.ParseMode(mode))
			return nil
		},
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("log", "pretty", "Log mode: debug, pretty, info, prod, test")
	rootCmd.PersistentFlags().String("config", "", "Optional config file overriding the defaults")

	log := logger.WithComponent("cli")
	rootCmd.AddCommand(newTrainCommand(log))
	rootCmd.AddCommand(newPredictCommand(log))
	return rootCmd
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cliutil.ExecuteCommand(ctx, NewRootCommand()); err != nil {
		stop()
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return configutil.GetConfigWithPath(path)
}

// writeResult prints v as one compact JSON line.
func writeResult(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func flushMetrics(cfg *config.Config, rec *metrics.Recorder) {
	if cfg.Metrics.Textfile == "" {
		return
	}
	if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		log := logger.WithComponent("cli")
		log.Warn().Err(err).Msg("Metrics were not written")
	}
}
