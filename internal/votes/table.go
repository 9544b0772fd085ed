package votes

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Output column names.
const (
	StationColumn = ColStation
	TotalColumn   = "Vote Totals"
	PercentSuffix = " (%)"
)

// Row holds one polling station's counts and shares. Votes and Percent are
// aligned with Table.Candidates.
type Row struct {
	Station string
	Votes   []int
	Total   int
	Percent []float64
}

// Table is a per-polling-station vote table. It is built once by Transform
// or MergeStations and not modified afterwards.
type Table struct {
	Candidates []string
	Rows       []Row

	index map[string]int
}

// newTable computes totals and percentages for rows whose Votes are set.
func newTable(candidates []string, rows []Row) *Table {
	t := &Table{
		Candidates: candidates,
		Rows:       rows,
		index:      make(map[string]int, len(rows)),
	}
	for i := range t.Rows {
		r := &t.Rows[i]
		r.Total = 0
		for _, v := range r.Votes {
			r.Total += v
		}
		r.Percent = Percentages(r.Votes, r.Total)
		t.index[r.Station] = i
	}
	return t
}

// Percentages returns round(100*v/total, 2) for each count. A zero total
// yields all-zero percentages rather than NaN. Cells are rounded on their
// own, so a row sums to 100 within 0.005 per candidate.
func Percentages(votes []int, total int) []float64 {
	out := make([]float64, len(votes))
	if total <= 0 {
		return out
	}
	for i, v := range votes {
		out[i] = round2(100 * float64(v) / float64(total))
	}
	return out
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Lookup returns the row for a normalized station identifier.
func (t *Table) Lookup(station string) (Row, bool) {
	i, ok := t.index[station]
	if !ok {
		return Row{}, false
	}
	return t.Rows[i], true
}

// Len returns the number of stations.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Header returns the output column names: station, counts, total, shares.
func (t *Table) Header() []string {
	h := make([]string, 0, 2+2*len(t.Candidates))
	h = append(h, StationColumn)
	h = append(h, t.Candidates...)
	h = append(h, TotalColumn)
	for _, c := range t.Candidates {
		h = append(h, c+PercentSuffix)
	}
	return h
}

// Records renders the table as string rows, header first.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Header())
	for _, r := range t.Rows {
		rec := make([]string, 0, 2+2*len(t.Candidates))
		rec = append(rec, r.Station)
		for _, v := range r.Votes {
			rec = append(rec, strconv.Itoa(v))
		}
		rec = append(rec, strconv.Itoa(r.Total))
		for _, p := range r.Percent {
			rec = append(rec, strconv.FormatFloat(p, 'f', 2, 64))
		}
		out = append(out, rec)
	}
	return out
}

// MergeStations groups rows by normalized station identifier and sums their
// counts. Applying it to an already merged table returns an equal table.
func MergeStations(t *Table) *Table {
	merged := make(map[string]*Row, len(t.Rows))
	var order []string
	for _, r := range t.Rows {
		key := NormalizeStation(r.Station)
		m, ok := merged[key]
		if !ok {
			m = &Row{Station: key, Votes: make([]int, len(t.Candidates))}
			merged[key] = m
			order = append(order, key)
		}
		for i, v := range r.Votes {
			m.Votes[i] += v
		}
	}

	sortStations(order)
	rows := make([]Row, 0, len(order))
	for _, key := range order {
		rows = append(rows, *merged[key])
	}

	candidates := make([]string, len(t.Candidates))
	copy(candidates, t.Candidates)
	return newTable(candidates, rows)
}

// sortStations orders identifiers by their leading number, then lexically.
func sortStations(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		ni, ri := leadingNumber(ids[i])
		nj, rj := leadingNumber(ids[j])
		if ni != nj {
			return ni < nj
		}
		return ri < rj
	})
}

func leadingNumber(s string) (int, string) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return math.MaxInt, s
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return math.MaxInt, s
	}
	return n, strings.TrimSpace(s[end:])
}
