package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kikai-build/kikai/internal/codes"
	"github.com/kikai-build/kikai/internal/config"
	"github.com/kikai-build/kikai/internal/manifest"
	"github.com/kikai-build/kikai/internal/status"
)

// setup loads the configuration and manifest shared by every command
func setup(cmd *cobra.Command) (*config.Config, *manifest.Manifest, *status.Printer, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	printer := newPrinter(cmd, cfg)
	printer.Debugf("manifest: %s", cfg.Manifest)
	printer.Debugf("storage: %s", cfg.StorageDir)

	m, err := manifest.Load(cfg.Manifest)
	if err != nil {
		return nil, nil, nil, codes.Wrap(codes.StageManifest, "", err)
	}

	return cfg, m, printer, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, codes.Wrap(codes.StageConfig, "", err)
	}

	cfg, err := config.NewLoader().LoadForCommand(cmd, wd)
	if err != nil {
		return nil, codes.Wrap(codes.StageConfig, "", err)
	}

	return cfg, nil
}

func newPrinter(cmd *cobra.Command, cfg *config.Config) *status.Printer {
	return status.New(status.Options{
		Out:        cmd.OutOrStdout(),
		Err:        cmd.ErrOrStderr(),
		Verbose:    cfg.Verbose,
		NoProgress: cfg.NoProgress,
	})
}
