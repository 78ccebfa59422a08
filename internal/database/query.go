package database

import (
	"strings"
)

// QueryBuilder converts SQL queries with ? placeholders to dialect-specific format.
type QueryBuilder struct {
	dialect Dialect
}

// NewQueryBuilder creates a new QueryBuilder for the given dialect.
func NewQueryBuilder(dialect Dialect) *QueryBuilder {
	return &QueryBuilder{dialect: dialect}
}

// Build converts a query with ? placeholders to dialect-specific placeholders.
// For SQLite, returns the query unchanged.
// For PostgreSQL, converts ? to $1, $2, etc.
//
// Example:
//
//	input:  "SELECT * FROM party_members WHERE id = ? AND party_id = ?"
//	SQLite: "SELECT * FROM party_members WHERE id = ? AND party_id = ?"
//	Postgres: "SELECT * FROM party_members WHERE id = $1 AND party_id = $2"
func (qb *QueryBuilder) Build(query string) string {
	if _, ok := qb.dialect.(*SQLiteDialect); ok {
		return query
	}

	var result strings.Builder
	position := 1

	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result.WriteString(qb.dialect.Placeholder(position))
			position++
		} else {
			result.WriteByte(query[i])
		}
	}

	return result.String()
}

// Min renders a two-argument scalar minimum for the dialect.
//
//	SQLite:   MIN(defense + ?, ?)
//	Postgres: LEAST(defense + ?, ?)
func (qb *QueryBuilder) Min(a, b string) string {
	return qb.dialect.Least() + "(" + a + ", " + b + ")"
}
