package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/riding-cli/internal/model"
)

// Report summarizes one batch run.
type Report struct {
	RunID           string               `yaml:"run_id,omitempty"`
	Year            int                  `yaml:"year"`
	Status          model.RunStatus      `yaml:"status"`
	Boundary        string               `yaml:"boundary"`
	BoundaryRecords int                  `yaml:"boundary_records"`
	Unparsable      int                  `yaml:"unparsable_ridings"`
	Succeeded       int                  `yaml:"succeeded"`
	Failed          int                  `yaml:"failed"`
	StartedAt       time.Time            `yaml:"started_at"`
	FinishedAt      time.Time            `yaml:"finished_at"`
	Ridings         []model.RidingResult `yaml:"ridings"`
}

// FailedRidings returns the ridings that did not complete.
func (r *Report) FailedRidings() []model.RidingResult {
	var out []model.RidingResult
	for _, res := range r.Ridings {
		if res.Status != model.RidingStatusOK {
			out = append(out, res)
		}
	}
	return out
}

// WriteReport writes r as YAML to path.
func WriteReport(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "pipeline: create report dir")
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: write report %s", path)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read report %s", path)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse report %s", path)
	}
	return &r, nil
}

// FormatReport prints a human-readable summary.
func FormatReport(w io.Writer, r *Report) {
	fmt.Fprintf(w, "Election %d: %s (%d succeeded, %d failed)\n", r.Year, r.Status, r.Succeeded, r.Failed) //nolint:errcheck
	if r.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", r.RunID) //nolint:errcheck
	}
	fmt.Fprintf(w, "Boundary: %s (%d records)\n", r.Boundary, r.BoundaryRecords) //nolint:errcheck
	if r.Unparsable > 0 {
		fmt.Fprintf(w, "  %d records with unparsable riding numbers\n", r.Unparsable) //nolint:errcheck
	}
	fmt.Fprintln(w) //nolint:errcheck

	for _, res := range r.Ridings {
		if res.Status != model.RidingStatusOK {
			fmt.Fprintf(w, "  %-6d FAILED at %s: %s\n", res.Riding, res.Stage, res.Error) //nolint:errcheck
			continue
		}
		fmt.Fprintf(w, "  %-6d ok  candidates=%d stations=%d polygons=%d joined=%d\n", //nolint:errcheck
			res.Riding, res.Candidates, res.Stations, res.BoundaryRecords, res.Joined)
		if len(res.Warnings) > 0 {
			fmt.Fprintf(w, "         warnings: %s\n", strings.Join(res.Warnings, "; ")) //nolint:errcheck
		}
	}
}
