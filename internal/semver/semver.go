// Package semver parses and compares the strict MAJOR.MINOR.PATCH versions
// used to identify installed model artifacts (spec.md §4.4).
package semver

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed MAJOR.MINOR.PATCH triple.
type Version struct {
	Major, Minor, Patch int
}

// String renders the canonical "MAJOR.MINOR.PATCH" form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns <0, 0, >0 as v is less than, equal to, or greater than o.
func (v Version) Compare(o Version) int {
	if v.Major != o.Major {
		return v.Major - o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor - o.Minor
	}
	return v.Patch - o.Patch
}

// IsNewerThan reports whether v is strictly greater than o.
func (v Version) IsNewerThan(o Version) bool { return v.Compare(o) > 0 }

// IsOlderThan reports whether v is strictly less than o.
func (v Version) IsOlderThan(o Version) bool { return v.Compare(o) < 0 }

// CompareResult distinguishes a real ordering from "unknown" on parse failure.
type CompareResult int

const (
	// Unknown is returned by CompareStrings when either input fails to parse,
	// distinct from the zero value of a real comparison so callers can tell
	// "unknown" from "equal".
	Unknown CompareResult = -2
	Less    CompareResult = -1
	Equal   CompareResult = 0
	Greater CompareResult = 1
)

// Parse parses a strict "MAJOR.MINOR.PATCH" string: each component is a
// non-empty digit sequence with no leading zeros (except the literal "0"),
// no prefix, no pre-release suffix, exactly three components.
func Parse(s string) (Version, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, false
	}
	var nums [3]int
	for i, p := range parts {
		n, ok := parseComponent(p)
		if !ok {
			return Version{}, false
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, true
}

func parseComponent(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, false // leading zero, e.g. "01"
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CompareStrings parses both strings and compares them, returning Unknown if
// either fails to parse.
func CompareStrings(a, b string) CompareResult {
	va, ok := Parse(a)
	if !ok {
		return Unknown
	}
	vb, ok := Parse(b)
	if !ok {
		return Unknown
	}
	switch c := va.Compare(vb); {
	case c < 0:
		return Less
	case c > 0:
		return Greater
	default:
		return Equal
	}
}

// Valid reports whether s is a strictly well-formed semantic version.
func Valid(s string) bool {
	_, ok := Parse(s)
	return ok
}
