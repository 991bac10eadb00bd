package cache

import (
	"fmt"
	"strconv"
	"strings"
)

// Cache scopes, one per pipeline stage
const (
	ScopeDownload       = "download"
	ScopeExtracted      = "extracted"
	ScopeToolchain      = "toolchain"
	ScopeBuildSimple    = "build-simple"
	ScopeBuildAutotools = "build-autotools"
)

// Directories inside the storage root
const (
	DownloadsDir  = "downloads"
	ExtractedDir  = "extracted"
	ToolchainsDir = "toolchains"
)

const keySeparator = "::"

// Key builds the composite key scope::moduleID::stepID
func Key(scope, moduleID, stepID string) string {
	return strings.Join([]string{scope, moduleID, stepID}, keySeparator)
}

// NeedsUpdate reports whether the value stored under key is missing or
// differs from current. Store errors are returned, never treated as stale.
func NeedsUpdate(s Store, key, current string) (bool, error) {
	old, found, err := s.Get(key)
	if err != nil {
		return false, err
	}

	return !found || old != current, nil
}

// FormatSized encodes a checksum and byte size as "checksum::size"
func FormatSized(checksum string, size int64) string {
	return checksum + keySeparator + strconv.FormatInt(size, 10)
}

// ParseSized decodes a value written by FormatSized
func ParseSized(value string) (string, int64, error) {
	parts := strings.Split(value, keySeparator)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed cache value %q", value)
	}

	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed size in cache value %q: %w", value, err)
	}

	return parts[0], size, nil
}
