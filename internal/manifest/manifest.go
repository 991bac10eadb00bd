// Package manifest loads kikai.yml into validated module and toolchain
// specifications. Nothing outside this package sees raw YAML.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kikai-build/kikai/internal/utils"
)

// DefaultFile is the manifest file name looked up in the working directory
const DefaultFile = "kikai.yml"

// Build recipe kinds as written in the manifest
const (
	KindSimple    = "simple"
	KindAutotools = "autotools"
)

// SourceSpec is one source archive of a module
type SourceSpec struct {
	URL string

	// After is a shell script run in the extraction directory once the
	// archive has been extracted. Empty means no hook.
	After string

	// StripParents controls how archive entry paths are rewritten:
	// -1 flattens every entry to its basename, 0 keeps full paths and
	// N > 0 removes the first N path components.
	StripParents int
}

// BuildSpec is a module's build recipe: *SimpleBuild or *AutotoolsBuild
type BuildSpec interface {
	Kind() string
}

// SimpleStep is one named shell script of a simple build
type SimpleStep struct {
	Name string
	Run  string
}

// SimpleBuild runs its steps in order through the shell
type SimpleBuild struct {
	Steps []SimpleStep
}

func (*SimpleBuild) Kind() string { return KindSimple }

// AutotoolsBuild runs configure and make install
type AutotoolsBuild struct {
	ConfigureOptions string
	MakeOptions      string
	CFlags           string
	CPPFlags         string
	LDFlags          string
}

func (*AutotoolsBuild) Kind() string { return KindAutotools }

// ModuleSpec describes a module. It is read-only after loading.
type ModuleSpec struct {
	Name         string
	Sources      []SourceSpec
	Dependencies []string
	Build        BuildSpec
}

// ToolchainSpec describes the toolchains to provision
type ToolchainSpec struct {
	API        string
	STL        string
	Standalone bool
	After      string
	Platforms  []string
}

// Manifest is a validated kikai.yml
type Manifest struct {
	InstallRoot string
	Toolchain   ToolchainSpec
	Modules     map[string]*ModuleSpec
}

// ModuleNames returns all module names in sorted order
func (m *Manifest) ModuleNames() []string {
	names := make([]string, 0, len(m.Modules))
	for name := range m.Modules {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Load reads and validates the manifest at path. A relative install root
// is resolved against the manifest's directory.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.InstallRoot = utils.ExpandHome(m.InstallRoot)
	if !filepath.IsAbs(m.InstallRoot) {
		dir, err := filepath.Abs(filepath.Dir(path))
		if err != nil {
			return nil, err
		}

		m.InstallRoot = filepath.Join(dir, m.InstallRoot)
	}

	return m, nil
}

// Parse decodes and validates manifest YAML
func Parse(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return raw.convert()
}
