package semver

// Cutoff is a minimum plugin version, with Accepts as the at-or-above
// check. The catalog's publish path and the connection handshake do not
// consult it: the handshake rejects versions by their per-version cutoff
// flag instead.
type Cutoff struct {
	Min Version
}

// Accepts reports whether v is at or above the cutoff.
func (c Cutoff) Accepts(v Version) bool {
	return !LessThan(v, c.Min)
}
