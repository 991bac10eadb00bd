package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kikai-build/kikai/internal/orchestrator"
)

var planCmd = &cobra.Command{
	Use:          "plan [modules...]",
	Short:        "Show the build order",
	Long:         `Resolve the given modules and their dependencies and print the order they would be built in, without building anything.`,
	RunE:         runPlan,
	SilenceUsage: true,
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, m, printer, err := setup(cmd)
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Options{StorageDir: cfg.StorageDir, Printer: printer})

	order, err := orch.Plan(m, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Platforms: %s\n", strings.Join(m.Toolchain.Platforms, ", "))
	fmt.Fprintf(out, "Install root: %s\n", m.InstallRoot)

	for i, mod := range order {
		line := fmt.Sprintf("%d. %s (%s)", i+1, mod.Name, mod.Build.Kind())
		if len(mod.Dependencies) > 0 {
			line += " <- " + strings.Join(mod.Dependencies, ", ")
		}

		fmt.Fprintln(out, line)
	}

	return nil
}
