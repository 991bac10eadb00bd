package resolve

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikai-build/kikai/internal/manifest"
)

func modules(deps map[string][]string) map[string]*manifest.ModuleSpec {
	out := make(map[string]*manifest.ModuleSpec, len(deps))
	for name, d := range deps {
		out[name] = &manifest.ModuleSpec{Name: name, Dependencies: d, Build: &manifest.SimpleBuild{}}
	}

	return out
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}

	return -1
}

func TestResolve(t *testing.T) {
	all := modules(map[string][]string{
		"zlib":     nil,
		"libpng":   {"zlib"},
		"freetype": {"zlib", "libpng"},
		"harfbuzz": {"freetype", "zlib"},
		"openssl":  nil,
	})

	tests := []struct {
		name      string
		requested []string
		want      []string
	}{
		{
			name:      "single module",
			requested: []string{"zlib"},
			want:      []string{"zlib"},
		},
		{
			name:      "dependencies come first",
			requested: []string{"libpng"},
			want:      []string{"zlib", "libpng"},
		},
		{
			name:      "diamond visits shared dependency once",
			requested: []string{"harfbuzz"},
			want:      []string{"zlib", "libpng", "freetype", "harfbuzz"},
		},
		{
			name:      "duplicate requests",
			requested: []string{"zlib", "libpng", "zlib", "libpng"},
			want:      []string{"zlib", "libpng"},
		},
		{
			name:      "request order is kept for independent modules",
			requested: []string{"openssl", "zlib"},
			want:      []string{"openssl", "zlib"},
		},
		{
			name:      "empty request means everything in name order",
			requested: nil,
			want:      []string{"zlib", "libpng", "freetype", "harfbuzz", "openssl"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := Resolve(all, tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Names(order))
		})
	}
}

func TestResolve_DependencyOrdering(t *testing.T) {
	all := modules(map[string][]string{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d", "e"},
		"d": nil,
		"e": {"d"},
		"f": {"a", "e"},
	})

	order, err := Resolve(all, nil)
	require.NoError(t, err)

	names := Names(order)
	assert.Len(t, names, len(all), "each module exactly once")

	for _, m := range order {
		for _, dep := range m.Dependencies {
			assert.Less(t, indexOf(names, dep), indexOf(names, m.Name), "%s must come before %s", dep, m.Name)
		}
	}
}

func TestResolve_UnknownModule(t *testing.T) {
	all := modules(map[string][]string{
		"libpng": {"zlib"},
	})

	_, err := Resolve(all, []string{"openssl"})
	var unknown *UnknownModuleError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "openssl", unknown.Name)
	assert.Equal(t, "non-existent module: openssl", err.Error())

	_, err = Resolve(all, []string{"libpng"})
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "zlib", unknown.Name)
	assert.Equal(t, "libpng", unknown.RequiredBy)
	assert.Contains(t, err.Error(), "required by libpng")
}

func TestResolve_Cycle(t *testing.T) {
	tests := []struct {
		name      string
		deps      map[string][]string
		requested []string
		wantPath  []string
	}{
		{
			name:      "self dependency",
			deps:      map[string][]string{"a": {"a"}},
			requested: []string{"a"},
			wantPath:  []string{"a", "a"},
		},
		{
			name:      "two modules",
			deps:      map[string][]string{"a": {"b"}, "b": {"a"}},
			requested: []string{"a"},
			wantPath:  []string{"a", "b", "a"},
		},
		{
			name:      "cycle below an acyclic prefix",
			deps:      map[string][]string{"top": {"x"}, "x": {"y"}, "y": {"z"}, "z": {"x"}},
			requested: []string{"top"},
			wantPath:  []string{"x", "y", "z", "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(modules(tt.deps), tt.requested)

			var cycle *CycleError
			require.True(t, errors.As(err, &cycle), "want CycleError, got %v", err)
			assert.Equal(t, tt.wantPath, cycle.Path)
			assert.Contains(t, err.Error(), "dependency cycle detected")
		})
	}
}
