// Package semver implements the narrow slice of SemVer 2.0 precedence the
// plugin-version catalog needs: parsing "major.minor.patch[-pre][+build]"
// and comparing two versions for ordering, including pre-release handling.
//
// No example in the retrieval pack carries a SemVer library with usable
// source to imitate (only bare go.mod manifests reference
// github.com/Masterminds/semver, with no code behind them) so this is a
// small self-contained value type in the style of internal/kz's other
// value types, built on the standard library only.
package semver

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed SemVer 2.0 version.
type Version struct {
	Major, Minor, Patch uint64
	Pre                 string
	Build               string
}

// Parse parses "major.minor.patch[-pre][+build]".
func Parse(s string) (Version, error) {
	var v Version

	if i := strings.IndexByte(s, '+'); i >= 0 {
		v.Build = s[i+1:]
		s = s[:i]
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		v.Pre = s[i+1:]
		s = s[:i]
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("semver: expected major.minor.patch, got %q", s)
	}

	nums := make([]uint64, 3)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("semver: invalid numeric segment %q: %w", p, err)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

// String renders the canonical text form.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != "" {
		s += "-" + v.Pre
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Compare returns -1, 0, or 1 per standard SemVer precedence: major, minor,
// patch are compared numerically; a version with a pre-release is always
// lower than one without; two pre-releases are compared identifier by
// identifier (numeric identifiers compare numerically and are lower than
// alphanumeric ones, per the spec); build metadata never affects ordering.
func Compare(a, b Version) int {
	if c := cmp.Compare(a.Major, b.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Patch, b.Patch); c != 0 {
		return c
	}
	switch {
	case a.Pre == "" && b.Pre == "":
		return 0
	case a.Pre == "" && b.Pre != "":
		return 1
	case a.Pre != "" && b.Pre == "":
		return -1
	default:
		return comparePre(a.Pre, b.Pre)
	}
}

func comparePre(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")
	for i := 0; i < len(aParts) && i < len(bParts); i++ {
		if c := comparePreIdentifier(aParts[i], bParts[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(aParts), len(bParts))
}

func comparePreIdentifier(a, b string) int {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return cmp.Compare(an, bn)
	case aErr == nil:
		return -1 // numeric identifiers have lower precedence
	case bErr == nil:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}

// LessThan reports whether a orders strictly before b.
func LessThan(a, b Version) bool { return Compare(a, b) < 0 }
