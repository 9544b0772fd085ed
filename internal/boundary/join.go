package boundary

import (
	"fmt"
	"math"
	"strconv"

	"github.com/jonas-p/go-shp"
	"go.uber.org/zap"

	"github.com/sells-group/riding-cli/internal/votes"
)

// JoinedField is a vote-share column appended to a subset. DBF field names
// are limited to 10 characters, so columns get short generated names and
// Label keeps the full column name for the legend.
type JoinedField struct {
	Name  string
	Label string
	Field shp.Field
}

const (
	totalFieldName = "VOTE_TOT"
	votesPrefix    = "VOTES_"
	percentPrefix  = "PCT_"
)

// JoinedFields returns the columns JoinVoteShares appends for table, in
// order: one count per candidate, the total, one share per candidate.
func JoinedFields(table *votes.Table) []JoinedField {
	out := make([]JoinedField, 0, 1+2*len(table.Candidates))
	for i, c := range table.Candidates {
		name := fmt.Sprintf("%s%02d", votesPrefix, i+1)
		out = append(out, JoinedField{Name: name, Label: c, Field: shp.NumberField(name, 10)})
	}
	out = append(out, JoinedField{Name: totalFieldName, Label: votes.TotalColumn, Field: shp.NumberField(totalFieldName, 10)})
	for i, c := range table.Candidates {
		name := fmt.Sprintf("%s%02d", percentPrefix, i+1)
		out = append(out, JoinedField{Name: name, Label: c + votes.PercentSuffix, Field: shp.FloatField(name, 7, 2)})
	}
	return out
}

// JoinVoteShares inner-joins a subset with a polling-station table on the
// normalized station identifier. subsetKey names the subset's station field
// and tableKey the table's station column. Unmatched records on either side
// are dropped; when there are any the returned JoinMismatch is non-nil and
// has been logged.
func JoinVoteShares(sub *RidingSubset, table *votes.Table, subsetKey, tableKey string) (*RidingSubset, *JoinMismatch, error) {
	if tableKey != votes.StationColumn {
		return nil, nil, &SchemaError{Field: tableKey, Available: table.Header()}
	}
	keyIdx := FieldIndex(sub.Fields, subsetKey)
	if keyIdx < 0 {
		return nil, nil, &SchemaError{Field: subsetKey, Available: FieldNames(sub.Fields)}
	}

	joined := &RidingSubset{
		Riding:    sub.Riding,
		Source:    sub.Source,
		ShapeType: sub.ShapeType,
		Fields:    sub.Fields,
		Joined:    JoinedFields(table),
	}

	matched := make(map[string]bool, table.Len())
	unmatchedSubset := 0
	for _, rec := range sub.Records {
		key := StationKey(rec.Attributes[keyIdx])
		row, ok := table.Lookup(key)
		if !ok {
			unmatchedSubset++
			continue
		}
		matched[key] = true
		joined.Records = append(joined.Records, Record{
			Index:      rec.Index,
			Shape:      rec.Shape,
			Attributes: rec.Attributes,
			Values:     rowValues(row),
		})
	}

	unmatchedTable := 0
	for _, r := range table.Rows {
		if !matched[r.Station] {
			unmatchedTable++
		}
	}

	if unmatchedSubset == 0 && unmatchedTable == 0 {
		return joined, nil, nil
	}
	mismatch := &JoinMismatch{
		Riding:          sub.Riding,
		UnmatchedSubset: unmatchedSubset,
		UnmatchedTable:  unmatchedTable,
	}
	zap.L().Warn("boundary: join mismatch",
		zap.Int("riding", sub.Riding),
		zap.Int("unmatched_boundary", unmatchedSubset),
		zap.Int("unmatched_stations", unmatchedTable),
		zap.Int("joined", len(joined.Records)),
	)
	return joined, mismatch, nil
}

// StationKey normalizes a boundary station attribute the way vote tables
// normalize station ids. DBF numeric fields such as "101.0" become "101".
func StationKey(v string) string {
	s := votes.NormalizeStation(v)
	if _, err := strconv.Atoi(s); err == nil {
		return s
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

func rowValues(r votes.Row) []any {
	vals := make([]any, 0, 1+len(r.Votes)+len(r.Percent))
	for _, v := range r.Votes {
		vals = append(vals, v)
	}
	vals = append(vals, r.Total)
	for _, p := range r.Percent {
		vals = append(vals, p)
	}
	return vals
}
