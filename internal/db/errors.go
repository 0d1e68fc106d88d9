package db

import "strings"

// IsUniqueViolation reports whether err is a UNIQUE constraint failure on
// the given column (e.g. "servers.name" or just "name", matched as a
// substring anywhere in the error message, so it also matches one column
// of a multi-column constraint such as "servers.host, servers.port").
func IsUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}

// IsFKViolation reports whether err is a FOREIGN KEY constraint failure.
// SQLite's FK error does not name the offending column, so callers that
// need to disambiguate must infer it from which insert/update failed.
func IsFKViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
