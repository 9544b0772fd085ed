package votes

import (
	"go.uber.org/zap"
)

type stationCandidate struct {
	station   string
	candidate string
}

// Transform pivots raw vote records into one row per raw polling station and
// one column per candidate, merges split stations, and computes totals and
// vote shares. Candidate columns keep their order of first appearance.
func Transform(records []VoteRecord) (*Table, error) {
	var (
		candidates []string
		candIdx    = make(map[string]int)
		seen       = make(map[stationCandidate]int, len(records))
	)
	for _, r := range records {
		key := r.CandidateKey()
		sc := stationCandidate{station: r.Station, candidate: key}
		if _, dup := seen[sc]; dup {
			return nil, &DuplicateCandidateError{Station: r.Station, Candidate: key, Line: r.Line}
		}
		seen[sc] = r.Line
		if _, ok := candIdx[key]; !ok {
			candIdx[key] = len(candidates)
			candidates = append(candidates, key)
		}
	}

	// Pivot on the raw identifier; absent cells stay zero.
	pivot := make(map[string]*Row)
	var order []string
	for _, r := range records {
		row, ok := pivot[r.Station]
		if !ok {
			row = &Row{Station: r.Station, Votes: make([]int, len(candidates))}
			pivot[r.Station] = row
			order = append(order, r.Station)
		}
		row.Votes[candIdx[r.CandidateKey()]] = r.Votes
	}

	rows := make([]Row, 0, len(order))
	for _, station := range order {
		rows = append(rows, *pivot[station])
	}

	table := MergeStations(newTable(candidates, rows))

	zap.L().Debug("votes: transformed",
		zap.Int("records", len(records)),
		zap.Int("raw_stations", len(order)),
		zap.Int("stations", table.Len()),
		zap.Int("candidates", len(candidates)),
	)

	return table, nil
}
