package kz

import (
	"fmt"
	"strings"
)

// Permissions is a bitflag set of administrative capabilities.
type Permissions uint8

// Individual permission bits. Values are stable across the wire string
// encoding below and must not be renumbered.
const (
	PermissionMaps Permissions = 1 << iota
	PermissionServers
	PermissionBans
	PermissionUsers
	PermissionAdmin
)

var permissionNames = []struct {
	bit  Permissions
	name string
}{
	{PermissionMaps, "maps"},
	{PermissionServers, "servers"},
	{PermissionBans, "bans"},
	{PermissionUsers, "users"},
	{PermissionAdmin, "admin"},
}

// Contains reports whether p has every bit set in other (a subset test).
func (p Permissions) Contains(other Permissions) bool {
	return p&other == other
}

// String renders the permission set as a comma-separated list of names,
// e.g. "bans,servers". An empty set renders as "".
func (p Permissions) String() string {
	var names []string
	for _, entry := range permissionNames {
		if p.Contains(entry.bit) {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, ",")
}

// ParsePermissions parses the comma-separated wire form produced by String,
// round-tripping exactly the bits that were set.
func ParsePermissions(s string) (Permissions, error) {
	var p Permissions
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		found := false
		for _, entry := range permissionNames {
			if entry.name == part {
				p |= entry.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("permissions: unknown flag %q", part)
		}
	}
	return p, nil
}
