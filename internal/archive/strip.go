package archive

import (
	"path"
	"strings"
)

// StripPath applies the strip-parents rule to an archive entry name. It
// returns false when the entry should be skipped.
//
//	-1  keep only the last path component
//	 0  keep the name unchanged
//	 N  drop the first N components; names with N or fewer are skipped
//
// A trailing slash does not count as a component.
func StripPath(name string, stripParents int) (string, bool) {
	if name == "" {
		return "", false
	}

	var stripped string

	switch {
	case stripParents < 0:
		stripped = path.Base(name)
	case stripParents == 0:
		stripped = name
	default:
		parts := strings.Split(name, "/")
		n := len(parts)
		if parts[n-1] == "" {
			n--
		}

		if n <= stripParents {
			return "", false
		}

		stripped = strings.Join(parts[stripParents:n], "/")
	}

	switch stripped {
	case "", ".", "/", "./":
		return "", false
	}

	return stripped, true
}
