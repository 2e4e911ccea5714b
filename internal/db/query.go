package db

import (
	"errors"
	"strconv"
	"strings"
)

// Dialect selects the placeholder style and locking clauses of a Query.
type Dialect int

const (
	// SQLite uses ? placeholders and has no row level locks.
	SQLite Dialect = iota
	// Postgres uses $n placeholders and supports FOR UPDATE.
	Postgres
)

var ErrEmptyParams = errors.New("empty parameter list")

// Query helps build SQL queries using bind parameters.
// Use Unsafe to construct parts of a query and use Param to add bind parameters.
// The final query and parameters can be retrieved using the Get method.
//
// The zero value is ready to use and builds SQLite queries.
type Query struct {
	Dialect Dialect
	b       strings.Builder
	params  []any
	err     error
}

// Unsafe writes a non-parameterized part of a query.
func (q *Query) Unsafe(s string) {
	q.b.WriteString(s)
}

// Param writes a parameterized part of a query.
func (q *Query) Param(v any) {
	q.params = append(q.params, v)
	if q.Dialect == Postgres {
		q.b.WriteString("$")
		q.b.WriteString(strconv.Itoa(len(q.params)))
		return
	}
	q.b.WriteString("?")
}

// Params writes multiple parameterized parts of a query seperated by commas.
// An empty list is an error, "IN ()" is not valid SQL.
func (q *Query) Params(v ...any) {
	if len(v) == 0 {
		q.err = errors.Join(q.err, ErrEmptyParams)
		return
	}

	for i, p := range v {
		if i > 0 {
			q.b.WriteString(", ")
		}
		q.Param(p)
	}
}

// ForUpdate locks the selected rows until the end of the transaction.
// SQLite locks the whole database for writing transactions, so nothing is written there.
func (q *Query) ForUpdate() {
	if q.Dialect == Postgres {
		q.b.WriteString(" FOR UPDATE")
	}
}

// Get returns the constructed query and parameter values.
func (q *Query) Get() (string, []any, error) {
	return q.b.String(), q.params, q.err
}
