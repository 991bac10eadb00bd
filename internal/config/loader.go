package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable kikai reads its settings from
const EnvPrefix = "KIKAI"

// flagKeys maps command flags to configuration keys
var flagKeys = map[string]string{
	"manifest":    KeyManifest,
	"storage":     KeyStorage,
	"ndk":         KeyNDK,
	"verbose":     KeyVerbose,
	"no-progress": KeyNoProgress,
}

// Loader handles configuration loading from various sources
type Loader struct{}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadForCommand loads configuration for cmd. Later sources win: defaults,
// the global config file, the nearest .kikai.* above dir, KIKAI_*
// environment variables and finally flags.
func (l *Loader) LoadForCommand(cmd *cobra.Command, dir string) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.loadLocalConfig(dir)
	l.bindEnv()
	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault(KeyManifest, DefaultManifest)
	viper.SetDefault(KeyStorage, DefaultStorageDir)
	viper.SetDefault(KeyVerbose, DefaultVerbose)
	viper.SetDefault(KeyNoProgress, DefaultNoProgress)
}

// loadGlobalConfig loads the per-user configuration file
func (l *Loader) loadGlobalConfig() {
	globalDir := GlobalConfigDir()
	if globalDir == "" {
		return
	}

	for _, ext := range configExtensions {
		globalPath := filepath.Join(globalDir, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			viper.SetConfigFile(globalPath)

			if err := viper.MergeInConfig(); err == nil {
				break
			}
		}
	}
}

// loadLocalConfig merges the nearest project configuration over the global one
func (l *Loader) loadLocalConfig(dir string) {
	if dir == "" {
		return
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return // silently ignore, config.Load() will handle validation
	}

	localPath := FindLocalConfig(abs)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.MergeInConfig()
	}
}

// bindEnv makes KIKAI_STORAGE, KIKAI_NDK and friends override config files
func (l *Loader) bindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	for _, key := range flagKeys {
		_ = viper.BindEnv(key)
	}
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	for name, key := range flagKeys {
		if flag := lookupFlag(cmd, name); flag != nil {
			_ = viper.BindPFlag(key, flag)
		}
	}
}

func lookupFlag(cmd *cobra.Command, name string) *pflag.Flag {
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag
	}

	return cmd.InheritedFlags().Lookup(name)
}
