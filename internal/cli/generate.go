package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/cohortgen/cohortgen/internal/config"
	"github.com/cohortgen/cohortgen/internal/scheduler"
	"github.com/cohortgen/cohortgen/internal/store"
	"github.com/cohortgen/cohortgen/internal/validate"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	ConfigPath  string
	ModulesDir  string
	Population  int
	Seed        uint64
	End         string
	StepHours   int
	StepBudget  int
	Workers     int
	OutputDir   string
	Formats     []string
	Database    string
	OnlyLiving  bool
	Lenient     bool
	Check       bool
	Strict      bool
	MetricsAddr string
}

// GenerateSummary is the run accounting reported on completion.
type GenerateSummary struct {
	RunID     string  `json:"run_id"`
	Seed      uint64  `json:"seed"`
	Completed int64   `json:"completed"`
	Failed    int64   `json:"failed"`
	Abandoned int64   `json:"abandoned"`
	Events    int64   `json:"events"`
	Issues    int     `json:"issues,omitempty"`
	Seconds   float64 `json:"seconds"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic patient population",
		Long: `Generate a synthetic patient population from a module directory.

Configuration comes from an optional YAML file with flags layered on
top. The same seed, module set, and end date always reproduce the same
population.

Examples:
  cohortgen generate --modules ./modules --population 1000 --out ./out
  cohortgen generate --config run.yaml --seed 42 --db ./out/run.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to run config YAML")
	cmd.Flags().StringVar(&opts.ModulesDir, "modules", "", "directory of module JSON files")
	cmd.Flags().IntVarP(&opts.Population, "population", "n", 0, "number of patients to generate")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "run seed")
	cmd.Flags().StringVar(&opts.End, "end", "", "simulation end date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.StepHours, "step-hours", 0, "clock step in hours")
	cmd.Flags().IntVar(&opts.StepBudget, "step-budget", 0, "max states per instance per tick")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "worker count (0 = all CPUs)")
	cmd.Flags().StringVar(&opts.OutputDir, "out", "", "output directory for exports")
	cmd.Flags().StringSliceVar(&opts.Formats, "formats", nil, "export formats (fhir,csv,ndjson)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite sink")
	cmd.Flags().BoolVar(&opts.OnlyLiving, "only-living", false, "regenerate patients who die before the end date")
	cmd.Flags().BoolVar(&opts.Lenient, "lenient-weights", false, "renormalize distributed weights with any positive sum")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "validate record consistency for every patient")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit non-zero when any patient fails")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runGenerate(opts *GenerateOptions, cmd *cobra.Command) error {
	flags := cmd.Flags()
	cfg, err := runConfig(opts.ConfigPath, func(c *config.Config) {
		if flags.Changed("modules") {
			c.ModulesDir = opts.ModulesDir
		}
		if flags.Changed("population") {
			c.Population = opts.Population
		}
		if flags.Changed("seed") {
			c.Seed = opts.Seed
		}
		if flags.Changed("end") {
			c.End = opts.End
		}
		if flags.Changed("step-hours") {
			c.StepHours = opts.StepHours
		}
		if flags.Changed("step-budget") {
			c.StepBudget = opts.StepBudget
		}
		if flags.Changed("workers") {
			c.Workers = opts.Workers
		}
		if flags.Changed("out") {
			c.Output.Dir = opts.OutputDir
		}
		if flags.Changed("formats") {
			c.Output.Formats = opts.Formats
		}
		if flags.Changed("db") {
			c.Output.Database = opts.Database
		}
		if flags.Changed("only-living") {
			c.OnlyLiving = opts.OnlyLiving
		}
		if flags.Changed("lenient-weights") {
			c.LenientWeights = opts.Lenient
		}
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "loading config", err)
	}
	// An output dir with no formats means the common case: CSV tables.
	if cfg.Output.Dir != "" && len(cfg.Output.Formats) == 0 {
		cfg.Output.Formats = []string{config.FormatCSV}
	}

	gen, err := buildGenerator(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "configuring run", err)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var metrics *scheduler.Metrics
	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = scheduler.NewMetrics(reg)
		stop := serveMetrics(opts.MetricsAddr, reg)
		defer stop()
	}

	pool := scheduler.New(gen, scheduler.Options{
		Workers: cfg.Workers,
		Metrics: metrics,
	})

	end, _ := cfg.EndDate()
	run := store.Run{
		ID:         uuid.NewString(),
		Seed:       cfg.Seed,
		Population: cfg.Population,
		End:        end,
		Step:       cfg.Step(),
		Modules:    moduleNames(gen),
		StartedAt:  time.Now().UTC(),
	}

	out, err := openSinks(ctx, cfg, run)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening outputs", err)
	}

	slog.Info("generation starting",
		"run", run.ID,
		"population", cfg.Population,
		"seed", cfg.Seed,
		"workers", pool.Workers())

	results, err := pool.Run(ctx, cfg.Population)
	if err != nil {
		out.close(ctx)
		return WrapExitError(ExitCommandError, "starting run", err)
	}

	report := validate.Report{}
	var events int64
	for res := range results {
		if res.Failed() {
			if err := out.fail(ctx, res.Err); err != nil {
				out.close(ctx)
				return WrapExitError(ExitCommandError, "recording failure", err)
			}
			continue
		}
		events += int64(res.Record.Len())
		if opts.Check {
			report.Add(res.Person, res.Record)
		}
		if err := out.add(ctx, res.Person, res.Record); err != nil {
			out.close(ctx)
			return WrapExitError(ExitCommandError, "writing patient", err)
		}
	}
	if err := out.close(ctx); err != nil {
		return WrapExitError(ExitCommandError, "closing outputs", err)
	}
	if err := ctx.Err(); err != nil {
		return WrapExitError(ExitFailure, "run interrupted", err)
	}

	sum := pool.Summary()
	summary := GenerateSummary{
		RunID:     run.ID,
		Seed:      cfg.Seed,
		Completed: sum.Completed,
		Failed:    sum.Failed,
		Abandoned: sum.Abandoned,
		Events:    events,
		Issues:    len(report.Issues),
		Seconds:   sum.Elapsed.Seconds(),
	}

	if opts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), summary); err != nil {
			return err
		}
	} else {
		printSummary(cmd, summary)
	}

	for _, issue := range report.Issues {
		slog.Warn("record inconsistency", "issue", issue.String())
	}
	if opts.Check && !report.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record consistency issues", len(report.Issues)))
	}
	if opts.Strict && sum.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d patients failed", sum.Failed))
	}
	return nil
}

// printSummary renders the human-readable run report.
func printSummary(cmd *cobra.Command, s GenerateSummary) {
	p := message.NewPrinter(language.English)
	w := cmd.OutOrStdout()
	p.Fprintf(w, "Run %s complete in %.1fs\n", s.RunID, s.Seconds)
	p.Fprintf(w, "  Patients: %d completed, %d failed, %d abandoned\n",
		s.Completed, s.Failed, s.Abandoned)
	p.Fprintf(w, "  Events:   %d\n", s.Events)
	if s.Issues > 0 {
		p.Fprintf(w, "  Issues:   %d record inconsistencies\n", s.Issues)
	}
}

// signalContext derives a context cancelled by SIGINT or SIGTERM, so an
// interrupted run abandons in-flight patients at a tick boundary.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// serveMetrics exposes a registry over HTTP until stop is called.
func serveMetrics(addr string, reg *prometheus.Registry) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
