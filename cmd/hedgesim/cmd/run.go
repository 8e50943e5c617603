package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/hedgesim/backtest"
	"github.com/rustyeddy/hedgesim/book"
	simexec "github.com/rustyeddy/hedgesim/broker/sim"
	"github.com/rustyeddy/hedgesim/config"
	"github.com/rustyeddy/hedgesim/internal/logging"
	"github.com/rustyeddy/hedgesim/internal/metrics"
	"github.com/rustyeddy/hedgesim/journal"
	"github.com/rustyeddy/hedgesim/risk"
	"github.com/rustyeddy/hedgesim/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a backtest over two OHLC data files",
	Long: `Run a backtest of the dual moving-average strategy and its hedges.

Data files are CSV with a header row: date,open,high,low,close and optional
volume and contract columns. The contract column of the hedge file names the
dominant contract per day.

Examples:
  hedgesim run -f hedgesim.yaml
  hedgesim run -u etf.csv -H meal.csv --metrics-addr :9102 --org run.org`,
	RunE: runRun,
}

var runOpts struct {
	configPath  string
	underlying  string
	hedge       string
	dataset     string
	orgPath     string
	metricsAddr string
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runOpts.configPath, "config", "f", "", "path to config file (YAML or JSON)")
	f.StringVarP(&runOpts.underlying, "underlying", "u", "", "underlying OHLC CSV (overrides data.underlying_file)")
	f.StringVarP(&runOpts.hedge, "hedge", "H", "", "hedge OHLC CSV (overrides data.hedge_file)")
	f.StringVar(&runOpts.dataset, "dataset", "", "dataset label stored with the run")
	f.StringVar(&runOpts.orgPath, "org", "", "write an Org-mode report of the run to this file")
	f.StringVar(&runOpts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
}

func openJournal(cfg *config.Config) (journal.Journal, error) {
	switch cfg.Journal.Type {
	case "csv":
		return journal.NewCSV(cfg.Journal.FillsFile, cfg.Journal.EquityFile)
	case "sqlite":
		return journal.NewSQLite(cfg.Journal.DBPath)
	default:
		return journal.Nop{}, nil
	}
}

func feedParams(cfg *config.Config) backtest.FeedParams {
	return backtest.FeedParams{
		FastPeriod: cfg.Strategy.FastPeriod,
		SlowPeriod: cfg.Strategy.SlowPeriod,
		ATRPeriod:  cfg.Strategy.ATRPeriod,
		MACDFast:   cfg.MomentumHedge.FastPeriod,
		MACDSlow:   cfg.MomentumHedge.SlowPeriod,
		MACDSignal: cfg.MomentumHedge.SignalPeriod,
	}
}

// serveMetrics exposes reg on addr until the returned shutdown is called.
func serveMetrics(addr string, reg *prometheus.Registry, log logrus.FieldLogger) func() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// closeInto closes c and joins a failure onto *err.
func closeInto(err *error, c io.Closer, what string) {
	if cerr := c.Close(); cerr != nil {
		*err = errors.Join(*err, fmt.Errorf("close %s: %w", what, cerr))
	}
}

func runRun(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig(runOpts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runOpts.underlying != "" {
		cfg.Data.UnderlyingFile = runOpts.underlying
	}
	if runOpts.hedge != "" {
		cfg.Data.HedgeFile = runOpts.hedge
	}
	if runOpts.dataset != "" {
		cfg.Data.Dataset = runOpts.dataset
	}

	log, closer, err := logging.New(cfg.Logging(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()

	j, err := openJournal(cfg)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer closeInto(&err, j, "journal")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if runOpts.metricsAddr != "" {
		shutdown := serveMetrics(runOpts.metricsAddr, reg, log)
		defer shutdown()
	}

	feed, err := backtest.NewCSVFeed(cfg.Data.UnderlyingFile, cfg.Data.HedgeFile, cfg.Hedge.Code, feedParams(cfg))
	if err != nil {
		return err
	}

	runID := backtest.NewRunID()
	engine := sim.NewEngine(
		book.New(cfg.BookParams(), log),
		risk.NewEngine(cfg.Policy(), log),
		simexec.NewExecutor(simexec.WithDelay(cfg.Simulation.FillDelay)),
		sim.WithJournal(j),
		sim.WithMetrics(m),
		sim.WithLogger(log),
		sim.WithRunID(runID),
	)

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner := &backtest.Runner{
		Engine:  engine,
		Feed:    feed,
		Journal: j,
		Log:     log,
		Options: backtest.RunnerOptions{
			CloseAtEnd: cfg.Simulation.CloseAtEnd,
			Dataset:    cfg.Data.Dataset,
			Underlying: cfg.Underlying.Code,
			Hedge:      cfg.Hedge.Code,
			Config:     raw,
		},
	}
	res, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	backtest.PrintResult(cmd.OutOrStdout(), res)

	if runOpts.orgPath != "" {
		rec := res.Record()
		if err := rec.WriteOrgFile(runOpts.orgPath); err != nil {
			return fmt.Errorf("write org report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Org Report:    %s\n", runOpts.orgPath)
	}
	return nil
}
