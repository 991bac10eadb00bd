package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kikai-build/kikai/internal/cache"
	"github.com/kikai-build/kikai/internal/codes"
	"github.com/kikai-build/kikai/internal/orchestrator"
	"github.com/kikai-build/kikai/internal/runner"
	"github.com/kikai-build/kikai/internal/status"
)

var buildCmd = &cobra.Command{
	Use:          "build [modules...]",
	Short:        "Build modules",
	Long:         `Build the given modules and their dependencies, or every module in the manifest when none are given.`,
	RunE:         runBuild,
	SilenceUsage: true,
}

// newRunner creates the process runner; subprocess output shares the
// printer's streams
var newRunner = func(printer *status.Printer) runner.Runner {
	return runner.NewExecRunner(printer.Out(), printer.ErrOut())
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, m, printer, err := setup(cmd)
	if err != nil {
		return err
	}

	store, err := cache.Open(cfg.StorageDir)
	if err != nil {
		return codes.Wrap(codes.StageCache, "", err)
	}
	defer store.Close()

	orch := orchestrator.New(orchestrator.Options{
		Store:      store,
		StorageDir: cfg.StorageDir,
		NDK:        cfg.NDK,
		Runner:     newRunner(printer),
		Printer:    printer,
	})

	if err := orch.Run(cmd.Context(), m, args); err != nil {
		return err
	}

	printer.Status(string(codes.StageBuild), "Done")
	return nil
}
