package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cohortgen/cohortgen/internal/loader"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Lenient bool
}

// ModuleReport summarizes one validated module.
type ModuleReport struct {
	Name        string   `json:"name"`
	Priority    int      `json:"priority"`
	States      int      `json:"states"`
	Submodules  []string `json:"submodules,omitempty"`
	Unreachable []string `json:"unreachable,omitempty"`
}

// ValidateResult is the validate command's output payload.
type ValidateResult struct {
	Modules []ModuleReport `json:"modules"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <modules-dir>",
		Short: "Validate a module directory without generating",
		Long: `Validate every module in a directory: schema conformance, state
graph integrity, transition weights, and submodule references.

Exit codes:
  0 - All modules valid
  1 - One or more modules failed validation
  2 - Command error (directory missing, unreadable files)

Examples:
  cohortgen validate ./modules
  cohortgen validate ./modules --lenient-weights --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Lenient, "lenient-weights", false, "accept distributed weights with any positive sum")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	modules, err := loadModules(dir, opts.Lenient)
	if err != nil {
		var le *loader.LoadError
		if errors.As(err, &le) {
			if opts.Format == "json" {
				_ = writeJSONError(cmd.OutOrStdout(), "E_MODULE", le.Message, le.Error())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "✗ %s\n", le.Error())
			}
			return WrapExitError(ExitFailure, "module validation failed", err)
		}
		return WrapExitError(ExitCommandError, "loading modules", err)
	}

	result := ValidateResult{Modules: make([]ModuleReport, 0, len(modules))}
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := modules[name]
		result.Modules = append(result.Modules, ModuleReport{
			Name:        m.Name,
			Priority:    m.Priority,
			States:      len(m.StateNames()),
			Submodules:  m.SubmoduleRefs(),
			Unreachable: m.Unreachable(),
		})
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), result)
	}

	w := cmd.OutOrStdout()
	for _, r := range result.Modules {
		fmt.Fprintf(w, "✓ %s (%d states, priority %d)\n", r.Name, r.States, r.Priority)
		for _, u := range r.Unreachable {
			fmt.Fprintf(w, "  warning: state %q is unreachable\n", u)
		}
	}
	fmt.Fprintf(w, "%d module(s) valid\n", len(result.Modules))
	return nil
}
