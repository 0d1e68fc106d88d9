package db

import "strings"

// QueryBuilder incrementally composes a SQL statement the way the catalog
// store's list/filter queries do: a fixed prefix, then conditionally
// appended clauses and placeholders. It generalizes the "query += ...;
// args = append(args, ...)" pattern used inline throughout this package's
// predecessor into something callers can build once and Reset between uses
// instead of re-declaring var query string; var args []any every call.
type QueryBuilder struct {
	sb   strings.Builder
	args []any
}

// NewQueryBuilder starts a builder with the given fixed prefix (typically
// "SELECT ... FROM ... WHERE 1=1").
func NewQueryBuilder(prefix string) *QueryBuilder {
	qb := &QueryBuilder{}
	qb.sb.WriteString(prefix)
	return qb
}

// Push appends a clause fragment verbatim. Use for static SQL keywords
// ("ORDER BY created_at DESC") or parameterized fragments ("AND tier = ?").
func (qb *QueryBuilder) Push(fragment string) *QueryBuilder {
	qb.sb.WriteByte(' ')
	qb.sb.WriteString(fragment)
	return qb
}

// PushValues appends a parameterized fragment together with its bind
// values, keeping the placeholder text and the args slice in lockstep.
func (qb *QueryBuilder) PushValues(fragment string, values ...any) *QueryBuilder {
	qb.Push(fragment)
	qb.args = append(qb.args, values...)
	return qb
}

// Build returns the composed SQL text and its bind arguments.
func (qb *QueryBuilder) Build() (string, []any) {
	return qb.sb.String(), qb.args
}

// Reset clears the builder back to prefix so it can be reused without
// reallocating, matching the teacher's per-call query construction but
// amortized across a hot loop (e.g. the points daemon's chunked upserts).
func (qb *QueryBuilder) Reset(prefix string) {
	qb.sb.Reset()
	qb.sb.WriteString(prefix)
	qb.args = qb.args[:0]
}
