package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cohortgen/cohortgen/internal/config"
	"github.com/cohortgen/cohortgen/internal/engine"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	ConfigPath string
	ModulesDir string
	Seed       uint64
	End        string
	Sample     int
	Index      int
	Trace      bool
}

// ReplayIndexResult is the outcome of replaying one patient index.
type ReplayIndexResult struct {
	Index         int    `json:"index"`
	Deterministic bool   `json:"deterministic"`
	Detail        string `json:"detail,omitempty"`
}

// ReplayResult is the replay command's output payload.
type ReplayResult struct {
	Results          []ReplayIndexResult `json:"results"`
	AllDeterministic bool                `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Simulate patients twice and verify determinism",
		Long: `Simulate a sample of patients twice from the same seed and compare
their records event by event.

Exit codes:
  0 - Every sampled patient reproduced exactly
  1 - A replay diverged
  2 - Command error (bad module directory, bad flags)

Examples:
  cohortgen replay --modules ./modules --seed 42 --end 2020-01-01
  cohortgen replay --config run.yaml --sample 25 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to run config YAML")
	cmd.Flags().StringVar(&opts.ModulesDir, "modules", "", "directory of module JSON files")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "run seed")
	cmd.Flags().StringVar(&opts.End, "end", "", "simulation end date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.Sample, "sample", 10, "number of patient indices to verify")
	cmd.Flags().IntVar(&opts.Index, "index", -1, "verify a single patient index")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print the replayed event trace (single index only)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	flags := cmd.Flags()
	cfg, err := runConfig(opts.ConfigPath, func(c *config.Config) {
		if flags.Changed("modules") {
			c.ModulesDir = opts.ModulesDir
		}
		if flags.Changed("seed") {
			c.Seed = opts.Seed
		}
		if flags.Changed("end") {
			c.End = opts.End
		}
		// Replay touches no outputs.
		c.Output = config.Output{}
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "loading config", err)
	}

	gen, err := buildGenerator(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "configuring run", err)
	}

	var indices []int
	if opts.Index >= 0 {
		indices = []int{opts.Index}
	} else {
		if opts.Sample <= 0 {
			return NewExitError(ExitCommandError, "sample must be positive")
		}
		for i := 0; i < opts.Sample; i++ {
			indices = append(indices, i)
		}
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	result := ReplayResult{AllDeterministic: true}
	for _, index := range indices {
		r := ReplayIndexResult{Index: index, Deterministic: true}
		if err := engine.VerifyDeterminism(ctx, gen, index); err != nil {
			if ctx.Err() != nil {
				return WrapExitError(ExitFailure, "replay interrupted", ctx.Err())
			}
			r.Deterministic = false
			r.Detail = err.Error()
			result.AllDeterministic = false
		}
		result.Results = append(result.Results, r)
	}

	if opts.Trace && opts.Index >= 0 {
		if err := printTrace(ctx, gen, opts.Index, cmd); err != nil {
			return WrapExitError(ExitCommandError, "tracing patient", err)
		}
	}

	if opts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, r := range result.Results {
			mark := "✓"
			if !r.Deterministic {
				mark = "✗"
			}
			fmt.Fprintf(w, "%s patient %d\n", mark, r.Index)
			if r.Detail != "" {
				fmt.Fprintf(w, "  %s\n", r.Detail)
			}
		}
		if result.AllDeterministic {
			fmt.Fprintf(w, "✓ %d patient(s) reproduced exactly\n", len(result.Results))
		} else {
			fmt.Fprintln(w, "✗ replay diverged")
		}
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// printTrace simulates one patient and prints the full event sequence,
// the reproduction path for a failure descriptor's (seed, index).
func printTrace(ctx context.Context, gen *engine.Generator, index int, cmd *cobra.Command) error {
	p, rec, err := gen.Patient(ctx, index)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "patient %d (%s, born %s): %d events\n",
		index, p.Sex, p.BirthDate.Format(time.DateOnly), rec.Len())
	for _, e := range rec.Events() {
		stop := "open"
		if !e.Stop.IsZero() {
			stop = e.Stop.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "  %s  %-12s %s %s (%s) [%s/%s] stop=%s\n",
			e.Start.Format(time.RFC3339), e.Kind,
			e.Code.System, e.Code.Value, e.Code.Display,
			e.Module, e.State, stop)
	}
	return nil
}
