// Package resolve expands a set of requested modules into a build order in
// which every module comes after all of its dependencies.
package resolve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kikai-build/kikai/internal/manifest"
)

// UnknownModuleError reports a requested module or dependency that the
// manifest does not define
type UnknownModuleError struct {
	Name string

	// RequiredBy is the module declaring the dependency, empty when the
	// name was requested directly
	RequiredBy string
}

func (e *UnknownModuleError) Error() string {
	if e.RequiredBy == "" {
		return fmt.Sprintf("non-existent module: %s", e.Name)
	}

	return fmt.Sprintf("non-existent module: %s (required by %s)", e.Name, e.RequiredBy)
}

// CycleError reports a dependency cycle. Path starts and ends with the same
// module.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle detected: " + strings.Join(e.Path, " -> ")
}

type mark int

const (
	white mark = iota // not visited
	gray              // on the current DFS path
	black             // done, already in the order
)

type resolver struct {
	modules map[string]*manifest.ModuleSpec
	marks   map[string]mark
	path    []string
	order   []*manifest.ModuleSpec
}

// Resolve returns requested modules and their transitive dependencies in
// dependency order, each exactly once. An empty request means all modules.
func Resolve(modules map[string]*manifest.ModuleSpec, requested []string) ([]*manifest.ModuleSpec, error) {
	if len(requested) == 0 {
		requested = make([]string, 0, len(modules))
		for name := range modules {
			requested = append(requested, name)
		}

		sort.Strings(requested)
	}

	r := &resolver{
		modules: modules,
		marks:   make(map[string]mark, len(modules)),
	}

	for _, name := range requested {
		if err := r.visit(name, ""); err != nil {
			return nil, err
		}
	}

	return r.order, nil
}

func (r *resolver) visit(name, requiredBy string) error {
	switch r.marks[name] {
	case black:
		return nil
	case gray:
		start := 0
		for i, n := range r.path {
			if n == name {
				start = i
				break
			}
		}

		cycle := append([]string{}, r.path[start:]...)
		return &CycleError{Path: append(cycle, name)}
	}

	module, ok := r.modules[name]
	if !ok {
		return &UnknownModuleError{Name: name, RequiredBy: requiredBy}
	}

	r.marks[name] = gray
	r.path = append(r.path, name)

	for _, dep := range module.Dependencies {
		if err := r.visit(dep, name); err != nil {
			return err
		}
	}

	r.path = r.path[:len(r.path)-1]
	r.marks[name] = black
	r.order = append(r.order, module)

	return nil
}

// Names returns the module names of order
func Names(order []*manifest.ModuleSpec) []string {
	names := make([]string, len(order))
	for i, m := range order {
		names[i] = m.Name
	}

	return names
}
