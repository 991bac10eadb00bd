package manifest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type rawManifest struct {
	InstallRoot *string               `yaml:"install-root"`
	Toolchain   *rawToolchain         `yaml:"toolchain"`
	Modules     map[string]*rawModule `yaml:"modules"`
}

type rawToolchain struct {
	API        *string  `yaml:"api"`
	STL        *string  `yaml:"stl"`
	Standalone bool     `yaml:"standalone"`
	After      string   `yaml:"after"`
	Platforms  []string `yaml:"platforms"`
}

type rawModule struct {
	Sources      []rawSource `yaml:"sources"`
	Dependencies []string    `yaml:"dependencies"`
	Build        *rawBuild   `yaml:"build"`
}

type rawSource struct {
	URL          *string       `yaml:"url"`
	After        string        `yaml:"after"`
	StripParents *stripParents `yaml:"strip-parents"`
}

type rawBuild struct {
	Type  string    `yaml:"type"`
	Steps []rawStep `yaml:"steps"`

	ConfigureOptions string `yaml:"configure-options"`
	MakeOptions      string `yaml:"make-options"`
	CFlags           string `yaml:"cflags"`
	CPPFlags         string `yaml:"cppflags"`
	LDFlags          string `yaml:"ldflags"`
}

type rawStep struct {
	Name *string `yaml:"name"`
	Run  *string `yaml:"run"`
}

// stripParents accepts both `strip-parents: 1` and `strip-parents: "1"`
type stripParents int

func (s *stripParents) UnmarshalYAML(value *yaml.Node) error {
	n, err := strconv.Atoi(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("line %d: strip-parents must be an integer, got %q", value.Line, value.Value)
	}

	*s = stripParents(n)
	return nil
}

func missing(path string) error {
	return fmt.Errorf("%s is missing", path)
}

func (r *rawManifest) convert() (*Manifest, error) {
	if r.InstallRoot == nil || *r.InstallRoot == "" {
		return nil, missing("install-root")
	}

	if r.Toolchain == nil {
		return nil, missing("toolchain")
	}

	toolchain, err := r.Toolchain.convert()
	if err != nil {
		return nil, err
	}

	if r.Modules == nil {
		return nil, missing("modules")
	}

	m := &Manifest{
		InstallRoot: *r.InstallRoot,
		Toolchain:   toolchain,
		Modules:     make(map[string]*ModuleSpec, len(r.Modules)),
	}

	var errs []error
	for name, raw := range r.Modules {
		module, err := raw.convert(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		m.Modules[name] = module
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return m, nil
}

func (r *rawToolchain) convert() (ToolchainSpec, error) {
	if r.API == nil {
		return ToolchainSpec{}, missing("toolchain.api")
	}

	if r.STL == nil {
		return ToolchainSpec{}, missing("toolchain.stl")
	}

	if len(r.Platforms) == 0 {
		return ToolchainSpec{}, missing("toolchain.platforms")
	}

	for i, p := range r.Platforms {
		if p == "" {
			return ToolchainSpec{}, fmt.Errorf("toolchain.platforms[%d] is empty", i)
		}
	}

	return ToolchainSpec{
		API:        *r.API,
		STL:        *r.STL,
		Standalone: r.Standalone,
		After:      r.After,
		Platforms:  r.Platforms,
	}, nil
}

func (r *rawModule) convert(name string) (*ModuleSpec, error) {
	if r == nil {
		return nil, fmt.Errorf("modules.%s must be a mapping", name)
	}

	module := &ModuleSpec{
		Name:         name,
		Dependencies: r.Dependencies,
	}

	for i, src := range r.Sources {
		if src.URL == nil || *src.URL == "" {
			return nil, missing(fmt.Sprintf("modules.%s.sources[%d].url", name, i))
		}

		strip := -1
		if src.StripParents != nil {
			strip = int(*src.StripParents)
		}

		module.Sources = append(module.Sources, SourceSpec{
			URL:          *src.URL,
			After:        src.After,
			StripParents: strip,
		})
	}

	for i, dep := range r.Dependencies {
		if dep == "" {
			return nil, fmt.Errorf("modules.%s.dependencies[%d] is empty", name, i)
		}
	}

	if r.Build == nil {
		return nil, missing(fmt.Sprintf("modules.%s.build", name))
	}

	build, err := r.Build.convert(name)
	if err != nil {
		return nil, err
	}

	module.Build = build
	return module, nil
}

func (r *rawBuild) convert(module string) (BuildSpec, error) {
	switch r.Type {
	case KindSimple:
		if r.Steps == nil {
			return nil, missing(fmt.Sprintf("modules.%s.build.steps", module))
		}

		build := &SimpleBuild{}
		seen := make(map[string]bool)

		for i, step := range r.Steps {
			if step.Name == nil {
				return nil, missing(fmt.Sprintf("modules.%s.build.steps[%d].name", module, i))
			}

			if step.Run == nil {
				return nil, missing(fmt.Sprintf("modules.%s.build.steps[%d].run", module, i))
			}

			// step names are cache keys
			if seen[*step.Name] {
				return nil, fmt.Errorf("modules.%s.build.steps[%d]: duplicate step name %q", module, i, *step.Name)
			}
			seen[*step.Name] = true

			build.Steps = append(build.Steps, SimpleStep{Name: *step.Name, Run: *step.Run})
		}

		return build, nil
	case KindAutotools:
		return &AutotoolsBuild{
			ConfigureOptions: r.ConfigureOptions,
			MakeOptions:      r.MakeOptions,
			CFlags:           r.CFlags,
			CPPFlags:         r.CPPFlags,
			LDFlags:          r.LDFlags,
		}, nil
	case "":
		return nil, missing(fmt.Sprintf("modules.%s.build.type", module))
	default:
		return nil, fmt.Errorf("modules.%s.build.type must be either %s or %s, got %q", module, KindSimple, KindAutotools, r.Type)
	}
}
