package toolchain

import (
	"fmt"
	"runtime"
	"strings"
)

// Platform is an Android target architecture
type Platform struct {
	// Name is the NDK architecture name, used for directories and --arch
	Name string

	// Triple is the target triple passed to --host and used in compiler names
	Triple string
}

var platforms = []Platform{
	{Name: "armv7a", Triple: "armv7a-linux-androideabi"},
	{Name: "arm64", Triple: "aarch64-linux-android"},
	{Name: "x86", Triple: "i686-linux-android"},
	{Name: "x86_64", Triple: "x86_64-linux-android"},
}

var aliases = map[string]string{
	"arm":     "armv7a",
	"aarch64": "arm64",
}

// Platforms returns the supported platform names
func Platforms() []string {
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = p.Name
	}

	return names
}

// LookupPlatform resolves a platform name or alias
func LookupPlatform(name string) (Platform, error) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}

	for _, p := range platforms {
		if p.Name == name {
			return p, nil
		}
	}

	return Platform{}, fmt.Errorf("unknown platform %q (expected one of %s)", name, strings.Join(Platforms(), ", "))
}

// HostTag returns the NDK prebuilt directory name for the running host
func HostTag() string {
	arch := "x86_64"
	if runtime.GOARCH == "386" {
		arch = "i686"
	}

	return runtime.GOOS + "-" + arch
}
