package build

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/kikai-build/kikai/internal/cache"
	"github.com/kikai-build/kikai/internal/manifest"
	"github.com/kikai-build/kikai/internal/runner"
	"github.com/kikai-build/kikai/internal/utils"
)

// Autotools step names
const (
	StepConfigure = "configure"
	StepMake      = "make"
)

var (
	ErrNoConfigure = errors.New("autogen.sh does not exist, and autoreconf is not available")
	ErrNoMakefile  = errors.New("Makefile does not exist")
	ErrNoPkgconf   = errors.New("pkgconf is not available")
)

// Autotools runs configure then make install
type Autotools struct {
	Spec manifest.AutotoolsBuild
}

func (a *Autotools) Build(ctx context.Context, e *Executor, job Job) error {
	configureOptions, err := shellquote.Split(a.Spec.ConfigureOptions)
	if err != nil {
		return fmt.Errorf("invalid configure-options: %w", err)
	}

	makeOptions, err := shellquote.Split(a.Spec.MakeOptions)
	if err != nil {
		return fmt.Errorf("invalid make-options: %w", err)
	}

	configureHash := cache.Hash(a.Spec.ConfigureOptions, a.Spec.CFlags, a.Spec.CPPFlags, a.Spec.LDFlags)
	err = e.step(cache.ScopeBuildAutotools, job, StepConfigure, configureHash, func() error {
		return a.configure(ctx, e, job, configureOptions)
	})
	if err != nil {
		return err
	}

	return e.step(cache.ScopeBuildAutotools, job, StepMake, cache.Hash(a.Spec.MakeOptions), func() error {
		return a.make(ctx, e, job, makeOptions)
	})
}

func (a *Autotools) configure(ctx context.Context, e *Executor, job Job, options []string) error {
	if err := a.bootstrap(ctx, e, job); err != nil {
		return err
	}

	pkgconf, err := e.lookPath("pkgconf")
	if err != nil {
		return ErrNoPkgconf
	}

	args := append([]string{"./configure"}, ConfigureArgs(a.Spec, job, pkgconf)...)
	args = append(args, options...)

	return e.Runner.Run(ctx, &runner.Command{
		Path: runner.DefaultShell,
		Args: args,
		Dir:  job.SourceDir,
		Env:  Env(job),
	})
}

// bootstrap generates the configure script when the source tree lacks one
func (a *Autotools) bootstrap(ctx context.Context, e *Executor, job Job) error {
	if utils.Exists(utils.JoinPath(job.SourceDir, "configure")) {
		return nil
	}

	if utils.Exists(utils.JoinPath(job.SourceDir, "autogen.sh")) {
		return e.Runner.Run(ctx, &runner.Command{
			Path: runner.DefaultShell,
			Args: []string{"./autogen.sh"},
			Dir:  job.SourceDir,
			Env:  append(Env(job), "NOCONFIGURE=1"),
		})
	}

	autoreconf, err := e.lookPath("autoreconf")
	if err != nil {
		return ErrNoConfigure
	}

	return e.Runner.Run(ctx, &runner.Command{
		Path: autoreconf,
		Args: []string{"-si"},
		Dir:  job.SourceDir,
		Env:  Env(job),
	})
}

func (a *Autotools) make(ctx context.Context, e *Executor, job Job, options []string) error {
	if !utils.Exists(utils.JoinPath(job.SourceDir, "Makefile")) {
		return ErrNoMakefile
	}

	var (
		makePath string
		err      error
	)

	if job.Toolchain.Standalone {
		makePath = job.Toolchain.Bin("make")
	} else if makePath, err = e.lookPath("make"); err != nil {
		return fmt.Errorf("make is not available: %w", err)
	}

	return e.Runner.Run(ctx, &runner.Command{
		Path: makePath,
		Args: append([]string{"install"}, options...),
		Dir:  job.SourceDir,
		Env:  Env(job),
	})
}

// ConfigureArgs returns the toolchain and prefix arguments passed to
// configure ahead of the user's options
func ConfigureArgs(spec manifest.AutotoolsBuild, job Job, pkgconf string) []string {
	include := "-I" + utils.JoinPath(job.InstallDir, "include")
	lib := "-L" + utils.JoinPath(job.InstallDir, "lib")

	return []string{
		"CC=" + job.Toolchain.CC,
		"CXX=" + job.Toolchain.CXX,
		"CFLAGS=" + flags(include, "-fPIC", "-fPIE", spec.CFlags),
		"CPPFLAGS=" + flags(include, spec.CPPFlags),
		"LDFLAGS=" + flags(lib, "-pie", spec.LDFlags),
		"PKG_CONFIG=" + pkgconf + " --env-only",
		"PKG_CONFIG_PATH=" + pkgConfigPath(job.InstallDir),
		"--prefix=" + job.InstallDir,
		"--host=" + job.Toolchain.Triple,
	}
}

func flags(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return strings.Join(out, " ")
}
