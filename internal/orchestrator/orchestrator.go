// Package orchestrator drives a kikai run: resolve the requested modules,
// provision toolchains, then bring each module's sources and builds up to
// date in dependency order.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kikai-build/kikai/internal/build"
	"github.com/kikai-build/kikai/internal/cache"
	"github.com/kikai-build/kikai/internal/codes"
	"github.com/kikai-build/kikai/internal/manifest"
	"github.com/kikai-build/kikai/internal/resolve"
	"github.com/kikai-build/kikai/internal/runner"
	"github.com/kikai-build/kikai/internal/source"
	"github.com/kikai-build/kikai/internal/status"
	"github.com/kikai-build/kikai/internal/toolchain"
)

// Options configure an Orchestrator
type Options struct {
	Store      cache.Store
	StorageDir string
	NDK        string
	Runner     runner.Runner
	Printer    *status.Printer
}

// Orchestrator wires the pipeline stages together
type Orchestrator struct {
	StorageDir string
	Printer    *status.Printer

	Sources    *source.Pipeline
	Toolchains *toolchain.Provisioner
	Builder    *build.Executor
}

// New creates an Orchestrator whose stages share one store and runner
func New(opts Options) *Orchestrator {
	printer := opts.Printer
	if printer == nil {
		printer = status.Discard()
	}

	return &Orchestrator{
		StorageDir: opts.StorageDir,
		Printer:    printer,
		Sources:    source.New(opts.Store, opts.StorageDir, opts.Runner, printer),
		Toolchains: toolchain.New(opts.Store, opts.StorageDir, opts.NDK, opts.Runner, printer),
		Builder:    build.New(opts.Store, opts.Runner, printer),
	}
}

// Plan returns the modules a run would process, in order, without side
// effects
func (o *Orchestrator) Plan(m *manifest.Manifest, requested []string) ([]*manifest.ModuleSpec, error) {
	order, err := resolve.Resolve(m.Modules, requested)
	if err != nil {
		return nil, codes.Wrap(codes.StageResolve, "", err)
	}

	return order, nil
}

// Run builds the requested modules, or every module when none are given.
// The first failure stops the run and is returned as a *codes.StageError.
func (o *Orchestrator) Run(ctx context.Context, m *manifest.Manifest, requested []string) error {
	order, err := o.Plan(m, requested)
	if err != nil {
		return err
	}

	o.Printer.Status(string(codes.StageResolve), "Modules: %s", strings.Join(resolve.Names(order), ", "))

	for _, dir := range []string{o.StorageDir, m.InstallRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return codes.Wrap(codes.StageConfig, "", fmt.Errorf("failed to create %s: %w", dir, err))
		}
	}

	toolchains, err := o.Toolchains.Provision(ctx, m.Toolchain)
	if err != nil {
		return codes.Wrap(codes.StageToolchain, "", err)
	}

	for _, mod := range order {
		if err := o.module(ctx, m, mod, toolchains); err != nil {
			return err
		}
	}

	return nil
}

func (o *Orchestrator) module(ctx context.Context, m *manifest.Manifest, mod *manifest.ModuleSpec, toolchains []toolchain.Toolchain) error {
	o.Printer.Status(string(codes.StageBuild), "Module: %s", mod.Name)

	extracted, updated, err := o.Sources.ProcessModule(ctx, mod)
	if err != nil {
		return codes.Wrap(codes.StageSource, mod.Name, err)
	}

	revision, err := o.Sources.Revision(mod)
	if err != nil {
		return codes.Wrap(codes.StageSource, mod.Name, err)
	}

	moduleID := source.ModuleID(mod.Name)

	for _, tc := range toolchains {
		job := build.Job{
			Module:     mod.Name,
			ModuleID:   moduleID,
			SourceDir:  extracted,
			InstallDir: build.InstallDir(m.InstallRoot, tc.Platform),
			Toolchain:  tc,
			Revision:   revision,
			Updated:    updated,
		}

		if err := o.Builder.Build(ctx, mod.Build, job); err != nil {
			return codes.Wrap(codes.StageBuild, mod.Name, err)
		}
	}

	return nil
}
