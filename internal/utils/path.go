package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// JoinPath joins segments onto base
func JoinPath(base string, segments ...string) string {
	return filepath.Join(append([]string{base}, segments...)...)
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
