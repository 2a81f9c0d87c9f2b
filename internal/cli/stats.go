package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/cohortgen/cohortgen/internal/store"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database string
	RunID    string
	Kind     string
	Module   string
	Top      int
}

// RunStats is the stats payload for one run.
type RunStats struct {
	Run      store.Run         `json:"run"`
	Patients int               `json:"patients"`
	Kinds    []store.KindCount `json:"kinds"`
	TopCodes []store.CodeCount `json:"top_codes"`
	Failures []store.Failure   `json:"failures,omitempty"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Report statistics from a generated database",
		Long: `Report statistics from a SQLite sink: event counts by kind, the most
frequent clinical codes, and recorded patient failures.

Without --run, lists the runs in the database.

Examples:
  cohortgen stats --db ./out/run.db
  cohortgen stats --db ./out/run.db --run <id> --kind condition --top 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to report on")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "restrict to one event kind")
	cmd.Flags().StringVar(&opts.Module, "module", "", "restrict to events from one module")
	cmd.Flags().IntVar(&opts.Top, "top", 10, "number of top codes to list")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, opts, st, cmd)
	}

	run, err := st.GetRun(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading run", err)
	}
	patients, err := st.CountPatients(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "counting patients", err)
	}

	filter := store.EventFilter{RunID: opts.RunID, Kind: opts.Kind, Module: opts.Module}
	kinds, err := st.EventCounts(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "aggregating events", err)
	}
	top, err := st.TopCodes(ctx, filter, opts.Top)
	if err != nil {
		return WrapExitError(ExitCommandError, "ranking codes", err)
	}
	failures, err := st.ListFailures(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "listing failures", err)
	}

	stats := RunStats{Run: run, Patients: patients, Kinds: kinds, TopCodes: top, Failures: failures}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), stats)
	}
	printStats(cmd, stats)
	return nil
}

func listRuns(ctx context.Context, opts *StatsOptions, st *store.Store, cmd *cobra.Command) error {
	ids, err := st.ListRunIDs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "listing runs", err)
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), ids)
	}
	w := cmd.OutOrStdout()
	if len(ids) == 0 {
		fmt.Fprintln(w, "No runs in database.")
		return nil
	}
	for _, id := range ids {
		run, err := st.GetRun(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, "reading run", err)
		}
		fmt.Fprintf(w, "%s  seed %d  population %d  started %s\n",
			run.ID, run.Seed, run.Population, run.StartedAt.Format(time.DateOnly))
	}
	return nil
}

func printStats(cmd *cobra.Command, s RunStats) {
	p := message.NewPrinter(language.English)
	w := cmd.OutOrStdout()

	p.Fprintf(w, "Run %s\n", s.Run.ID)
	p.Fprintf(w, "  Seed:       %d\n", s.Run.Seed)
	p.Fprintf(w, "  Population: %d (%d persisted)\n", s.Run.Population, s.Patients)
	p.Fprintf(w, "  Modules:    %v\n", s.Run.Modules)

	p.Fprintln(w, "Events by kind:")
	for _, kc := range s.Kinds {
		p.Fprintf(w, "  %-14s %d\n", kc.Kind, kc.Count)
	}

	p.Fprintln(w, "Top codes:")
	for _, cc := range s.TopCodes {
		p.Fprintf(w, "  %-10s %-12s %-30s %d\n", cc.System, cc.Code, cc.Display, cc.Count)
	}

	if len(s.Failures) > 0 {
		p.Fprintf(w, "Failures: %d\n", len(s.Failures))
		for _, f := range s.Failures {
			p.Fprintf(w, "  patient %d: %s in %s/%s\n", f.Index, f.Kind, f.Module, f.State)
		}
	}
}
