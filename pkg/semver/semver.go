// Package semver parses and compares the MAJOR.MINOR.PATCH version triples
// used to identify module releases in the catalog manifest.
package semver

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed semantic version triple. The zero value is 0.0.0,
// the same value as Baseline.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
}

// Parse parses a "MAJOR.MINOR.PATCH" string, optionally prefixed with "v".
// Strings outside this grammar are "unknown": Parse returns the zero
// Version with ok=false. Because the zero Version is also the valid
// "0.0.0", callers tell the two apart by ok, not by the returned value.
func Parse(s string) (v Version, ok bool) {
	s = strings.TrimPrefix(s, "v")
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, false
	}

	major, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Version{}, false
	}
	minor, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Version{}, false
	}
	patch, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return Version{}, false
	}

	return Version{Major: major, Minor: minor, Patch: patch}, true
}

// MustParse parses s, panicking on malformed input. Intended for constants
// and tests, not for catalog-derived data.
func MustParse(s string) Version {
	v, ok := Parse(s)
	if !ok {
		panic(fmt.Sprintf("semver: invalid version %q", s))
	}
	return v
}

// String renders the version as "MAJOR.MINOR.PATCH" (no "v" prefix, matching
// the version format a loaded module reports at runtime).
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// other, comparing component-wise as unsigned integers.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return cmpUint(v.Major, other.Major)
	}
	if v.Minor != other.Minor {
		return cmpUint(v.Minor, other.Minor)
	}
	return cmpUint(v.Patch, other.Patch)
}

// GreaterThan reports whether v is strictly greater than other.
func (v Version) GreaterThan(other Version) bool {
	return v.Compare(other) > 0
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Baseline is the version assumed for modules present in the manifest but
// not yet tracked by the device.
var Baseline = Version{Major: 0, Minor: 0, Patch: 0}
