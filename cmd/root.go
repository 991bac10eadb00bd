package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kikai-build/kikai/internal/codes"
	"github.com/kikai-build/kikai/internal/status"
	"github.com/kikai-build/kikai/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "kikai [modules...]",
	Short:         "Incremental cross-compilation builds for Android",
	Long:          `Build the modules described in kikai.yml for every configured Android platform, re-running only what changed since the last run.`,
	RunE:          runBuild,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ArbitraryArgs,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		reportError(status.New(status.Options{Err: rootCmd.ErrOrStderr()}), err)
	}

	stop()
	os.Exit(codes.ExitCode(err))
}

// reportError prints err and, for pipeline failures, what kikai was doing
func reportError(printer *status.Printer, err error) {
	printer.Error(err)

	if stage, ok := codes.StageOf(err); ok {
		fmt.Fprintf(printer.ErrOut(), "  (while %s)\n", strings.ToLower(codes.GetDescription(stage)))
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	rootCmd.PersistentFlags().StringP("manifest", "f", "", "Manifest file (default kikai.yml)")
	rootCmd.PersistentFlags().String("storage", "", "Storage directory for the cache, downloads and toolchains (default .kikai next to the manifest)")
	rootCmd.PersistentFlags().String("ndk", "", "Android NDK root (default $ANDROID_NDK or $ANDROID_NDK_ROOT)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().Bool("no-progress", false, "Disable progress bars")
	rootCmd.AddCommand(buildCmd, planCmd, cacheCmd)
}
