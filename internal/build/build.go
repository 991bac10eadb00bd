// Package build runs module build recipes against a toolchain. Every step
// is gated by the cache and only re-runs when its inputs changed or the
// module's sources were updated.
package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/kikai-build/kikai/internal/cache"
	"github.com/kikai-build/kikai/internal/manifest"
	"github.com/kikai-build/kikai/internal/runner"
	"github.com/kikai-build/kikai/internal/status"
	"github.com/kikai-build/kikai/internal/toolchain"
	"github.com/kikai-build/kikai/internal/utils"
)

const stage = "build"

// Job is one module built for one toolchain
type Job struct {
	Module     string
	ModuleID   string
	SourceDir  string
	InstallDir string
	Toolchain  toolchain.Toolchain

	// Revision identifies the sources the job builds; steps recorded against
	// another revision are stale
	Revision string

	// Updated forces every step to run, set when the sources were re-extracted
	Updated bool
}

// Recipe builds a job. Implemented by *Simple and *Autotools.
type Recipe interface {
	Build(ctx context.Context, e *Executor, job Job) error
}

// RecipeFor returns the recipe for a manifest build spec
func RecipeFor(spec manifest.BuildSpec) (Recipe, error) {
	switch s := spec.(type) {
	case *manifest.SimpleBuild:
		return &Simple{Steps: s.Steps}, nil
	case *manifest.AutotoolsBuild:
		return &Autotools{Spec: *s}, nil
	default:
		return nil, fmt.Errorf("unsupported build type %T", spec)
	}
}

// Executor runs recipes
type Executor struct {
	Store    cache.Store
	Runner   runner.Runner
	Printer  *status.Printer
	LookPath runner.LookPathFunc
}

// New creates an Executor searching $PATH for build tools
func New(store cache.Store, r runner.Runner, printer *status.Printer) *Executor {
	if printer == nil {
		printer = status.Discard()
	}

	return &Executor{
		Store:    store,
		Runner:   r,
		Printer:  printer,
		LookPath: exec.LookPath,
	}
}

// InstallDir returns the install prefix of a platform under root
func InstallDir(root, platform string) string {
	return utils.JoinPath(root, platform)
}

// StepID is the cache identity of a named step on a platform
func StepID(platform, step string) string {
	return cache.Hash(platform, step)
}

// Build runs the recipe for spec
func (e *Executor) Build(ctx context.Context, spec manifest.BuildSpec, job Job) error {
	recipe, err := RecipeFor(spec)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(job.InstallDir, 0o755); err != nil {
		return fmt.Errorf("failed to create install directory: %w", err)
	}

	return recipe.Build(ctx, e, job)
}

// stepValue is what a successful step records: its input hash, tied to the
// source revision it was built from
func stepValue(hash, revision string) string {
	if revision == "" {
		return hash
	}

	return cache.Hash(hash, revision)
}

// step runs fn unless the cache holds the step's value and the job is not
// forced. The value is recorded only after fn succeeds; until then the step
// has no record, so a failed or interrupted step always runs again.
func (e *Executor) step(scope string, job Job, name, hash string, fn func() error) error {
	key := cache.Key(scope, job.ModuleID, StepID(job.Toolchain.Platform, name))
	value := stepValue(hash, job.Revision)

	if !job.Updated {
		stale, err := cache.NeedsUpdate(e.Store, key, value)
		if err != nil {
			return fmt.Errorf("failed to read cache: %w", err)
		}

		if !stale {
			e.Printer.Debugf("%s: %s (%s) up to date", job.Module, name, job.Toolchain.Platform)
			return nil
		}
	}

	e.Printer.Status(stage, "  %s (%s)", name, job.Toolchain.Platform)

	if err := e.Store.Delete(key); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}

	if err := fn(); err != nil {
		return fmt.Errorf("step %s failed: %w", name, err)
	}

	if err := e.Store.Set(key, value); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}

	return nil
}

func (e *Executor) lookPath(file string) (string, error) {
	if e.LookPath == nil {
		return exec.LookPath(file)
	}

	return e.LookPath(file)
}

// Env returns the variables exposed to build processes
func Env(job Job) []string {
	tc := job.Toolchain

	return []string{
		"KIKAI_SOURCE=" + job.SourceDir,
		"KIKAI_PREFIX=" + job.InstallDir,
		"KIKAI_TOOLCHAIN=" + tc.Path,
		"KIKAI_PLATFORM=" + tc.Platform,
		"KIKAI_TRIPLE=" + tc.Triple,
		"KIKAI_CC=" + tc.CC,
		"KIKAI_CXX=" + tc.CXX,
		"CC=" + tc.CC,
		"CXX=" + tc.CXX,
		"PREFIX=" + job.InstallDir,
		"PKG_CONFIG_PATH=" + pkgConfigPath(job.InstallDir),
	}
}

func pkgConfigPath(install string) string {
	return utils.JoinPath(install, "lib", "pkgconfig") + ":" + utils.JoinPath(install, "share", "pkgconfig")
}
