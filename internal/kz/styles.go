package kz

import (
	"fmt"
	"strings"
)

// Styles is a bitflag set of run-style modifiers. A record with any bit set
// is "styled" and never participates in ranked leaderboards (spec.md §4.6).
type Styles uint32

const (
	StyleBackwards Styles = 1 << iota
	StyleSideways
	StyleWOnly
	StyleLowGravity
)

var styleNames = []struct {
	bit  Styles
	name string
}{
	{StyleBackwards, "backwards"},
	{StyleSideways, "sideways"},
	{StyleWOnly, "w_only"},
	{StyleLowGravity, "low_gravity"},
}

// IsEmpty reports whether no style bits are set — an unmodified, rankable run.
func (s Styles) IsEmpty() bool { return s == 0 }

// Contains reports whether s has every bit set in other.
func (s Styles) Contains(other Styles) bool { return s&other == other }

// String renders the style set as a comma-separated list of names.
func (s Styles) String() string {
	var names []string
	for _, entry := range styleNames {
		if s.Contains(entry.bit) {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseStyles parses the comma-separated wire form produced by String.
func ParseStyles(value string) (Styles, error) {
	var s Styles
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		found := false
		for _, entry := range styleNames {
			if entry.name == part {
				s |= entry.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("styles: unknown flag %q", part)
		}
	}
	return s, nil
}
