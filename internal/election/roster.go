package election

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riding-cli/internal/fetcher"
)

// RosterEntry is one roster row. Label is the second column, kept for logs.
type RosterEntry struct {
	Label  string
	Riding int
}

// ReadRosterFile reads a riding roster CSV from disk.
func ReadRosterFile(ctx context.Context, path string) ([]RosterEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "election: open roster %s", path)
	}
	defer f.Close() //nolint:errcheck

	return ReadRoster(ctx, f)
}

// ReadRoster parses a roster CSV: a header row, then rows whose third column
// is a riding number. Duplicate ridings are kept once, in first-seen order.
func ReadRoster(ctx context.Context, r io.Reader) ([]RosterEntry, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true, LazyQuotes: true})

	var (
		entries []RosterEntry
		seen    = make(map[int]bool)
		line    int
		rowErr  error
	)
	for row := range rowCh {
		line++
		if line == 1 || rowErr != nil {
			continue
		}
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}
		if len(row) < 3 {
			rowErr = eris.Errorf("election: roster line %d has %d columns, want at least 3", line, len(row))
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil {
			rowErr = eris.Wrapf(err, "election: roster line %d: riding number %q", line, row[2])
			continue
		}
		if seen[n] {
			zap.L().Debug("election: duplicate roster riding", zap.Int("riding", n), zap.Int("line", line))
			continue
		}
		seen[n] = true
		entries = append(entries, RosterEntry{Label: row[1], Riding: n})
	}
	for err := range errCh {
		if err != nil {
			return nil, eris.Wrap(err, "election: read roster")
		}
	}
	if rowErr != nil {
		return nil, rowErr
	}
	return entries, nil
}

// ResolveRidings returns the ridings to process: the manifest's explicit
// list when set, otherwise the roster's.
func ResolveRidings(ctx context.Context, m Manifest, dataDir string) ([]int, error) {
	if len(m.Ridings) > 0 {
		return m.Ridings, nil
	}
	path := m.RosterPath(dataDir)
	if path == "" {
		return nil, eris.Errorf("election: %d manifest has no ridings or roster", m.Year)
	}
	entries, err := ReadRosterFile(ctx, path)
	if err != nil {
		return nil, err
	}
	ridings := make([]int, len(entries))
	for i, e := range entries {
		ridings[i] = e.Riding
	}
	return ridings, nil
}
