package votes

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/riding-cli/internal/fetcher"
)

// ReadOptions configures ReadRecords.
type ReadOptions struct {
	// Encoding is a WHATWG charset label such as "windows-1252".
	// Empty or "utf-8" reads the input as-is.
	Encoding string
}

// DecodeReader wraps r so it yields UTF-8 for the given charset label.
func DecodeReader(r io.Reader, encoding string) (io.Reader, error) {
	label := strings.ToLower(strings.TrimSpace(encoding))
	if label == "" || label == "utf-8" || label == "utf8" {
		return r, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, eris.Wrapf(err, "votes: unsupported encoding %q", encoding)
	}
	return enc.NewDecoder().Reader(r), nil
}

// ReadFile reads every vote record in a results CSV file.
func ReadFile(ctx context.Context, path string, opts ReadOptions) ([]VoteRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "votes: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return ReadRecords(ctx, f, opts)
}

// ReadRecords parses a results CSV. The first row is the bilingual header.
func ReadRecords(ctx context.Context, r io.Reader, opts ReadOptions) ([]VoteRecord, error) {
	decoded, err := DecodeReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}

	rowCh, errCh := fetcher.StreamCSV(ctx, decoded, fetcher.CSVOptions{LazyQuotes: true})

	var (
		idx     map[string]int
		records []VoteRecord
		line    int
		rowErr  error
	)
	for row := range rowCh {
		line++
		if rowErr != nil {
			continue // drain
		}
		if idx == nil {
			idx, rowErr = IndexHeader(row)
			continue
		}
		if isBlank(row) {
			continue
		}
		rec, err := parseRow(row, idx, line)
		if err != nil {
			rowErr = err
			continue
		}
		records = append(records, rec)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "votes: read csv")
	}
	if rowErr != nil {
		return nil, rowErr
	}
	if idx == nil {
		return nil, &SchemaError{Missing: RequiredColumns}
	}

	return records, nil
}

func parseRow(row []string, idx map[string]int, line int) (VoteRecord, error) {
	get := func(col string) string {
		i := idx[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	riding, err := strconv.Atoi(get(ColDistrictNumber))
	if err != nil {
		return VoteRecord{}, &RowError{Line: line, Column: ColDistrictNumber, Value: get(ColDistrictNumber), Err: err}
	}

	votes := 0
	if raw := get(ColVotes); raw != "" {
		votes, err = strconv.Atoi(raw)
		if err != nil {
			return VoteRecord{}, &RowError{Line: line, Column: ColVotes, Value: raw, Err: err}
		}
		if votes < 0 {
			return VoteRecord{}, &RowError{Line: line, Column: ColVotes, Value: raw, Err: eris.New("negative vote count")}
		}
	}

	return VoteRecord{
		Riding:      riding,
		Station:     get(ColStation),
		FirstName:   get(ColFirstName),
		FamilyName:  get(ColFamilyName),
		Affiliation: get(ColAffiliation),
		Votes:       votes,
		Line:        line,
	}, nil
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// CheckRiding returns a RidingMismatchError if any record belongs to another riding.
func CheckRiding(records []VoteRecord, riding int) error {
	for _, r := range records {
		if r.Riding != riding {
			return &RidingMismatchError{Want: riding, Got: r.Riding, Line: r.Line}
		}
	}
	return nil
}
