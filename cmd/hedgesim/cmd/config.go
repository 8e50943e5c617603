package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/hedgesim/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files for backtests.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  hedgesim config init -o hedgesim.yaml
  hedgesim config validate -f hedgesim.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "hedgesim.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	_ = configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the data paths and run with:")
	fmt.Fprintf(out, "  hedgesim run -f %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Underlying: %s (%.2f, lot %d)\n", cfg.Underlying.Code, cfg.Account.UnderlyingBalance, cfg.Underlying.LotSize)
	fmt.Fprintf(out, "  Hedge:      %s (%.2f, x%.0f, margin %.0f%%)\n",
		cfg.Hedge.Code, cfg.Account.HedgeBalance, cfg.Hedge.ContractMultiplier, cfg.Hedge.MarginRate*100)
	fmt.Fprintf(out, "  Strategy:   MA %d/%d, risk %.1f%%\n", cfg.Strategy.FastPeriod, cfg.Strategy.SlowPeriod, cfg.Strategy.RiskRatio*100)
	fmt.Fprintf(out, "  Journal:    %s\n", cfg.Journal.Type)
	return nil
}
