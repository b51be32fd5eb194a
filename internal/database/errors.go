package database

import (
	"errors"
	"fmt"
	"strings"
)

// ErrQueryFailed marks any failure reported by SurrealDB for a statement.
var ErrQueryFailed = errors.New("query execution failed")

// DBError represents a database error with additional context.
type DBError struct {
	// The underlying error that was returned by the database driver.
	err error

	// What was being done when the error occurred.
	op string

	// The query that was being executed when the error occurred.
	query string
}

// NewDBError creates a new DBError for the operation op.
func NewDBError(err error, op string) *DBError {
	return &DBError{err: err, op: op}
}

// WithQuery adds query information to the error.
func (e *DBError) WithQuery(query string) *DBError {
	e.query = strings.Join(strings.Fields(query), " ")
	return e
}

// Error returns the error message.
func (e *DBError) Error() string {
	msg := e.op
	if e.query != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.query)
	}
	if e.err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DBError) Unwrap() error {
	return e.err
}

// Is lets errors.Is(err, ErrQueryFailed) match every DBError.
func (e *DBError) Is(target error) bool {
	return target == ErrQueryFailed
}

// isUniqueViolation reports whether SurrealDB rejected a write because a
// unique index already holds the value.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "already contains") || strings.Contains(msg, "already exists")
}
