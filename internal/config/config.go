package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/kikai-build/kikai/internal/cache"
	"github.com/kikai-build/kikai/internal/manifest"
	"github.com/kikai-build/kikai/internal/utils"
)

// Default configuration values
const (
	DefaultManifest   = manifest.DefaultFile
	DefaultStorageDir = cache.DefaultStorageDir
	DefaultVerbose    = false
	DefaultNoProgress = false
)

// Configuration keys, spelled like the flags in config files
const (
	KeyManifest   = "manifest"
	KeyStorage    = "storage"
	KeyNDK        = "ndk"
	KeyVerbose    = "verbose"
	KeyNoProgress = "no-progress"
)

// Holds the tool settings for kikai. The build itself is described by the
// manifest, not by these.
type Config struct {
	// Path to kikai.yml
	Manifest string

	// Directory holding the cache database, downloads, extracted sources
	// and standalone toolchains. Relative paths are resolved against the
	// manifest's directory.
	StorageDir string

	// Android NDK root; empty falls back to $ANDROID_NDK and $ANDROID_NDK_ROOT
	NDK string

	// Enable verbose output
	Verbose bool

	// Never draw progress bars
	NoProgress bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Manifest:   viper.GetString(KeyManifest),
		StorageDir: viper.GetString(KeyStorage),
		NDK:        viper.GetString(KeyNDK),
		Verbose:    viper.GetBool(KeyVerbose),
		NoProgress: viper.GetBool(KeyNoProgress),
	}

	// Apply defaults if not set
	if cfg.Manifest == "" {
		cfg.Manifest = DefaultManifest
	}

	if cfg.StorageDir == "" {
		cfg.StorageDir = DefaultStorageDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	abs, err := filepath.Abs(utils.ExpandHome(c.Manifest))
	if err != nil {
		return fmt.Errorf("invalid manifest path: %v", err)
	}

	c.Manifest = abs

	storage := utils.ExpandHome(c.StorageDir)
	if !filepath.IsAbs(storage) {
		storage = filepath.Join(filepath.Dir(c.Manifest), storage)
	}

	c.StorageDir = filepath.Clean(storage)

	if c.NDK != "" {
		abs, err := filepath.Abs(utils.ExpandHome(c.NDK))
		if err != nil {
			return fmt.Errorf("invalid ndk path: %v", err)
		}

		c.NDK = abs
	}

	return nil
}
