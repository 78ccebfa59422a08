package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PostgresDialect implements Dialect for PostgreSQL databases.
type PostgresDialect struct{}

// DriverName returns "postgres" for the lib/pq driver.
func (d *PostgresDialect) DriverName() string {
	return "postgres"
}

// Placeholder returns "$N" for the given position (PostgreSQL uses numbered placeholders).
func (d *PostgresDialect) Placeholder(position int) string {
	return fmt.Sprintf("$%d", position)
}

// InitStatements returns PostgreSQL initialization statements.
// Foreign keys are always enabled in PostgreSQL, so no PRAGMA needed.
func (d *PostgresDialect) InitStatements() []string {
	return nil
}

// IsDuplicateKeyError returns true if the error is a PostgreSQL unique violation.
func (d *PostgresDialect) IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") ||
		strings.Contains(errStr, "23505") ||
		strings.Contains(errStr, "unique constraint")
}

// ForUpdate locks the selected rows until the transaction ends.
func (d *PostgresDialect) ForUpdate() string {
	return " FOR UPDATE"
}

// Least returns "LEAST"; PostgreSQL's MIN is aggregate-only.
func (d *PostgresDialect) Least() string {
	return "LEAST"
}
