package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/hedgesim/config"
)

var rootCmd = &cobra.Command{
	Use:   "hedgesim",
	Short: "Dual moving-average strategy backtester with futures hedging",
	Long: `hedgesim backtests a long-only dual moving-average strategy on an
equity-like instrument, paired with two independent short futures hedges on
a separate account:

  - a loss-offset hedge opened after a stop-loss exit
  - a momentum-reversal hedge opened on an overheated MACD cross

Runs are journaled to CSV or SQLite and can be reported as Org-mode.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		return nil
	},
}

var envFile string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file with HEDGESIM_* overrides")
}

// loadConfig reads path, or the defaults with environment overrides when
// path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	cfg := config.Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
