package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cohortgen/cohortgen/internal/pathway"
)

// ModulesOptions holds flags for the modules command.
type ModulesOptions struct {
	*RootOptions
	Lenient bool
}

// StateReport describes one state for module inspection.
type StateReport struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// ModuleDetail is the payload for inspecting a single module.
type ModuleDetail struct {
	Name       string        `json:"name"`
	Priority   int           `json:"priority"`
	Remarks    string        `json:"remarks,omitempty"`
	States     []StateReport `json:"states"`
	Submodules []string      `json:"submodules,omitempty"`
}

// NewModulesCommand creates the modules command.
func NewModulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ModulesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "modules <modules-dir> [module-name]",
		Short: "List or inspect pathway modules",
		Long: `List the modules in a directory, or inspect one module's states.

Examples:
  cohortgen modules ./modules
  cohortgen modules ./modules flu --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			return runModules(opts, args[0], name, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Lenient, "lenient-weights", false, "accept distributed weights with any positive sum")

	return cmd
}

func runModules(opts *ModulesOptions, dir, name string, cmd *cobra.Command) error {
	modules, err := loadModules(dir, opts.Lenient)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading modules", err)
	}

	if name != "" {
		m, ok := modules[name]
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("no module named %q in %s", name, dir))
		}
		return describeModule(opts, m, cmd)
	}

	names := make([]string, 0, len(modules))
	for n := range modules {
		names = append(names, n)
	}
	sort.Strings(names)

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), names)
	}
	w := cmd.OutOrStdout()
	for _, n := range names {
		m := modules[n]
		fmt.Fprintf(w, "%-30s %d states\n", n, len(m.StateNames()))
	}
	return nil
}

func describeModule(opts *ModulesOptions, m *pathway.Module, cmd *cobra.Command) error {
	detail := ModuleDetail{
		Name:       m.Name,
		Priority:   m.Priority,
		Remarks:    m.Remarks,
		Submodules: m.SubmoduleRefs(),
	}
	for _, sn := range m.StateNames() {
		st, _ := m.State(sn)
		detail.States = append(detail.States, StateReport{Name: sn, Kind: stateKind(st)})
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), detail)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Module: %s (priority %d)\n", detail.Name, detail.Priority)
	if detail.Remarks != "" {
		fmt.Fprintf(w, "  %s\n", detail.Remarks)
	}
	for _, s := range detail.States {
		fmt.Fprintf(w, "  %-30s %s\n", s.Name, s.Kind)
	}
	for _, sub := range detail.Submodules {
		fmt.Fprintf(w, "  calls submodule %s\n", sub)
	}
	return nil
}

// stateKind names a state's concrete kind without the package prefix.
func stateKind(s pathway.State) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", s), "*pathway.")
}
