package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cohortgen/cohortgen/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
}

// ScenarioResult is one scenario's outcome.
type ScenarioResult struct {
	Name   string `json:"name"`
	File   string `json:"file"`
	Events int    `json:"events"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <scenario.yaml>...",
		Short: "Run single-patient scenarios and check their assertions",
		Long: `Run scenario files through the engine, one pinned patient each, and
check the declared trace assertions.

Module paths inside a scenario resolve relative to the scenario file.

Exit codes:
  0 - All scenarios passed
  1 - An assertion failed
  2 - Command error (unreadable scenario, bad module)

Example:
  cohortgen scenario ./scenarios/*.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	return cmd
}

func runScenarios(opts *ScenarioOptions, paths []string, cmd *cobra.Command) error {
	results := make([]ScenarioResult, 0, len(paths))
	failed := 0

	for _, path := range paths {
		s, err := harness.LoadScenario(path)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("loading scenario %s", path), err)
		}
		run, err := harness.Run(s, filepath.Dir(path))
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("running scenario %s", s.Name), err)
		}

		r := ScenarioResult{Name: s.Name, File: path, Events: len(run.Trace), Passed: true}
		if err := run.Check(s.Assertions); err != nil {
			r.Passed = false
			r.Detail = err.Error()
			failed++
		}
		results = append(results, r)
	}

	if opts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, r := range results {
			mark := "✓"
			if !r.Passed {
				mark = "✗"
			}
			fmt.Fprintf(w, "%s %s (%d events)\n", mark, r.Name, r.Events)
			if r.Detail != "" {
				fmt.Fprintf(w, "  %s\n", r.Detail)
			}
		}
		fmt.Fprintf(w, "%d passed, %d failed\n", len(results)-failed, failed)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", failed))
	}
	return nil
}
