package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/hedgesim/config"
	"github.com/rustyeddy/hedgesim/journal"
)

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Print a run from the SQLite journal as Org-mode",
	Long: `Read a run back from the SQLite journal and render it as an Org-mode
entry. Without a run id the most recent run is reported.

Examples:
  hedgesim report --db runs.db
  hedgesim report --db runs.db --fills 0b6f1c2e-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

var reportOpts struct {
	dbPath string
	fills  bool
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportOpts.dbPath, "db", "", "SQLite journal (default $"+config.EnvJournalDB+")")
	reportCmd.Flags().BoolVar(&reportOpts.fills, "fills", false, "append the run's fills")
}

func runReport(cmd *cobra.Command, args []string) error {
	path := reportOpts.dbPath
	if path == "" {
		path = os.Getenv(config.EnvJournalDB)
	}
	if path == "" {
		return fmt.Errorf("no journal: pass --db or set %s", config.EnvJournalDB)
	}

	j, err := journal.NewSQLite(path)
	if err != nil {
		return err
	}
	defer j.Close()

	var runID string
	if len(args) == 1 {
		runID = args[0]
	} else if runID, err = j.LatestRunID(); err != nil {
		return err
	}

	run, err := j.GetRun(runID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := run.WriteOrg(out); err != nil {
		return err
	}

	if reportOpts.fills {
		fills, err := j.ListFills(runID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, journal.FormatFillsOrg(fills))
	}
	return nil
}
