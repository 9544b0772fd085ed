// Package votes reshapes per-riding poll-by-poll results into a table of
// vote counts and vote shares per polling station.
package votes

import (
	"strings"
	"unicode"
)

// Column names after header cleaning.
const (
	ColDistrictNumber = "Electoral District Number"
	ColStation        = "Polling Station Number"
	ColFirstName      = "Candidate's First Name"
	ColFamilyName     = "Candidate's Family Name"
	ColAffiliation    = "Political Affiliation Name"
	ColVotes          = "Candidate Poll Votes Count"
)

// RequiredColumns lists the columns every results file must carry.
var RequiredColumns = []string{
	ColDistrictNumber,
	ColStation,
	ColFirstName,
	ColFamilyName,
	ColAffiliation,
	ColVotes,
}

// discardedColumns carry no analytical value. They are matched before the
// language suffix is stripped so the French affiliation column does not
// collide with the English one.
var discardedColumns = map[string]bool{
	"Electoral District Name_English":      true,
	"Electoral District Name_French":       true,
	"Void Poll Indicator":                  true,
	"No Poll Held Indicator":               true,
	"Merge With":                           true,
	"Rejected Ballots for Polling Station": true,
	"Political Affiliation Name_French":    true,
	"Candidate's Middle Name":              true,
	"Incumbent Indicator":                  true,
	"Elected Candidate Indicator":          true,
}

// VoteRecord is one candidate's count at one raw polling station.
type VoteRecord struct {
	Riding      int
	Station     string
	FirstName   string
	FamilyName  string
	Affiliation string
	Votes       int
	Line        int
}

// CandidateKey labels the candidate's column in the pivoted table.
func (r VoteRecord) CandidateKey() string {
	return r.FirstName + " " + r.FamilyName + " / " + r.Affiliation
}

// CleanHeaderName maps a bilingual "English/French" header to its English
// name, or returns ok=false for administrative columns that are dropped.
func CleanHeaderName(h string) (name string, ok bool) {
	h = strings.TrimPrefix(h, "\ufeff")
	name = strings.TrimSpace(strings.SplitN(h, "/", 2)[0])
	name = strings.ReplaceAll(name, "\u2019", "'")
	if discardedColumns[name] {
		return "", false
	}
	name = strings.TrimSpace(strings.SplitN(name, "_", 2)[0])
	return name, name != ""
}

// IndexHeader cleans a header row and returns the column position of every
// kept column. The first occurrence wins when two headers clean to the same
// name.
func IndexHeader(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name, ok := CleanHeaderName(h)
		if !ok {
			continue
		}
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}
	return idx, nil
}

// NormalizeStation trims whitespace and strips trailing uppercase letters,
// which mark split polling stations that share one boundary polygon.
// An identifier made only of letters is kept as-is.
func NormalizeStation(raw string) string {
	s := strings.TrimSpace(raw)
	stripped := strings.TrimSpace(strings.TrimRightFunc(s, unicode.IsUpper))
	if stripped == "" {
		return s
	}
	return stripped
}
