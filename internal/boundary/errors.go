package boundary

import (
	"fmt"
	"strings"
)

// SchemaError reports a field or column that a join or load needs but the
// data does not have.
type SchemaError struct {
	Field     string
	Available []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("boundary: no field %q (have %s)", e.Field, strings.Join(e.Available, ", "))
}

// JoinMismatch describes stations present on only one side of a join. It is
// a warning: the joined subset is still usable.
type JoinMismatch struct {
	Riding          int
	UnmatchedSubset int
	UnmatchedTable  int
}

func (m *JoinMismatch) Error() string {
	return fmt.Sprintf("boundary: riding %d join mismatch: %d boundary records and %d polling stations unmatched",
		m.Riding, m.UnmatchedSubset, m.UnmatchedTable)
}
