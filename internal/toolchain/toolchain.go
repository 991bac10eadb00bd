// Package toolchain locates the Android NDK and provides one cross
// toolchain per target platform, generating standalone toolchains when the
// manifest asks for them.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kikai-build/kikai/internal/cache"
	"github.com/kikai-build/kikai/internal/manifest"
	"github.com/kikai-build/kikai/internal/runner"
	"github.com/kikai-build/kikai/internal/status"
	"github.com/kikai-build/kikai/internal/utils"
)

const stage = "toolchain"

// NDK environment variables, in lookup order
const (
	EnvNDK     = "ANDROID_NDK"
	EnvNDKRoot = "ANDROID_NDK_ROOT"
)

// ErrNDKNotFound is returned when no NDK location is configured
var ErrNDKNotFound = errors.New("failed to locate Android NDK. Try setting ANDROID_NDK_ROOT or ANDROID_NDK to the NDK root directory")

// Toolchain is a ready-to-use cross toolchain for one platform
type Toolchain struct {
	Platform   string
	Path       string
	CC         string
	CXX        string
	Triple     string
	Standalone bool
}

// Bin returns the path of a program in the toolchain's bin directory
func (t Toolchain) Bin(name string) string {
	return utils.JoinPath(t.Path, "bin", name)
}

// Provisioner provides toolchains
type Provisioner struct {
	Store      cache.Store
	StorageDir string
	Runner     runner.Runner
	Printer    *status.Printer

	// NDK is the configured NDK root; empty falls back to the environment
	NDK string

	Getenv  func(string) string
	HostTag string
}

// New creates a Provisioner for the running host
func New(store cache.Store, storageDir, ndk string, r runner.Runner, printer *status.Printer) *Provisioner {
	if printer == nil {
		printer = status.Discard()
	}

	return &Provisioner{
		Store:      store,
		StorageDir: storageDir,
		Runner:     r,
		Printer:    printer,
		NDK:        ndk,
		Getenv:     os.Getenv,
		HostTag:    HostTag(),
	}
}

// FindNDK returns the configured NDK root, then $ANDROID_NDK, then
// $ANDROID_NDK_ROOT
func FindNDK(configured string, getenv func(string) string) (string, error) {
	if configured != "" {
		return utils.ExpandHome(configured), nil
	}

	for _, env := range []string{EnvNDK, EnvNDKRoot} {
		if ndk := getenv(env); ndk != "" {
			return ndk, nil
		}
	}

	return "", ErrNDKNotFound
}

// GeneratorPath returns the standalone toolchain generator inside an NDK
func GeneratorPath(ndk string) string {
	return utils.JoinPath(ndk, "build", "tools", "make_standalone_toolchain.py")
}

// PlatformID is the cache identity of a platform
func PlatformID(platform string) string {
	return cache.Hash(platform)
}

// Provision returns one toolchain per platform in spec order. Standalone
// toolchains are generated when their settings changed or their directory
// is missing.
func (p *Provisioner) Provision(ctx context.Context, spec manifest.ToolchainSpec) ([]Toolchain, error) {
	targets := make([]Platform, 0, len(spec.Platforms))
	for _, name := range spec.Platforms {
		platform, err := LookupPlatform(name)
		if err != nil {
			return nil, err
		}

		targets = append(targets, platform)
	}

	getenv := p.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	ndk, err := FindNDK(p.NDK, getenv)
	if err != nil {
		return nil, err
	}

	generator := GeneratorPath(ndk)
	if spec.Standalone && !utils.Exists(generator) {
		return nil, fmt.Errorf("%s does not exist", generator)
	}

	p.Printer.Debugf("using NDK at %s", ndk)

	toolchains := make([]Toolchain, 0, len(targets))
	for _, platform := range targets {
		tc := p.describe(ndk, platform, spec)

		if spec.Standalone {
			if err := p.generate(ctx, generator, tc, spec); err != nil {
				return nil, fmt.Errorf("%s: %w", platform.Name, err)
			}
		}

		toolchains = append(toolchains, tc)
	}

	return toolchains, nil
}

func (p *Provisioner) describe(ndk string, platform Platform, spec manifest.ToolchainSpec) Toolchain {
	tc := Toolchain{
		Platform:   platform.Name,
		Triple:     platform.Triple,
		Standalone: spec.Standalone,
	}

	prefix := platform.Triple
	if spec.Standalone {
		tc.Path = utils.JoinPath(p.StorageDir, cache.ToolchainsDir, platform.Name)
	} else {
		tc.Path = utils.JoinPath(ndk, "toolchains", "llvm", "prebuilt", p.HostTag)
		prefix += spec.API
	}

	tc.CC = tc.Bin(prefix + "-clang")
	tc.CXX = tc.Bin(prefix + "-clang++")

	return tc
}

func (p *Provisioner) generate(ctx context.Context, generator string, tc Toolchain, spec manifest.ToolchainSpec) error {
	platformID := PlatformID(tc.Platform)
	key := cache.Key(cache.ScopeToolchain, platformID, platformID)
	current := cache.Hash(spec.API, spec.STL, spec.After)

	stale, err := cache.NeedsUpdate(p.Store, key, current)
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	if !stale && utils.Exists(tc.Path) {
		p.Printer.Debugf("%s toolchain up to date", tc.Platform)
		return nil
	}

	p.Printer.Status(stage, "Creating %s toolchain (this may take a while)...", tc.Platform)

	if err := os.MkdirAll(filepath.Dir(tc.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(tc.Path), err)
	}

	cmd := &runner.Command{
		Path: generator,
		Args: []string{
			"--arch", tc.Platform,
			"--api", spec.API,
			"--stl", spec.STL,
			"--force",
			"--install-dir", tc.Path,
		},
	}

	if err := p.Runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("make_standalone_toolchain failed: %w", err)
	}

	if spec.After != "" {
		if err := p.Runner.Run(ctx, runner.Shell(spec.After, tc.Path, nil)); err != nil {
			return fmt.Errorf("toolchain.after failed: %w", err)
		}
	}

	if err := p.Store.Set(key, current); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}

	return nil
}
