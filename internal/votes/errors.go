package votes

import (
	"fmt"
	"strings"
)

// SchemaError reports required columns that are absent after header cleaning.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	quoted := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		quoted[i] = fmt.Sprintf("%q", m)
	}
	return "votes: missing required columns " + strings.Join(quoted, ", ")
}

// DuplicateCandidateError reports a candidate key that occurs more than once
// for the same raw polling station. Summing such rows would put votes in the
// wrong bucket, so the riding is rejected instead.
type DuplicateCandidateError struct {
	Station   string
	Candidate string
	Line      int
}

func (e *DuplicateCandidateError) Error() string {
	return fmt.Sprintf("votes: duplicate candidate %q for polling station %q (line %d)", e.Candidate, e.Station, e.Line)
}

// RowError reports a value that could not be parsed.
type RowError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("votes: line %d column %q value %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// RidingMismatchError reports a row that belongs to a different riding than
// the one being processed.
type RidingMismatchError struct {
	Want int
	Got  int
	Line int
}

func (e *RidingMismatchError) Error() string {
	return fmt.Sprintf("votes: line %d belongs to riding %d, expected %d", e.Line, e.Got, e.Want)
}
