// Package pipeline runs the per-riding batch: vote tables, boundary subsets,
// joins, reprojection and the run ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/riding-cli/internal/boundary"
	"github.com/sells-group/riding-cli/internal/config"
	"github.com/sells-group/riding-cli/internal/election"
	"github.com/sells-group/riding-cli/internal/model"
	"github.com/sells-group/riding-cli/internal/reproject"
	"github.com/sells-group/riding-cli/internal/store"
	"github.com/sells-group/riding-cli/internal/votes"
)

// Options controls one batch run.
type Options struct {
	DataDir       string
	OutputDir     string
	Encoding      string
	Format        string // "csv" or "xlsx"
	Join          bool
	GeoJSON       bool
	SourceSRS     string
	Concurrency   int
	RidingTimeout time.Duration
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DataDir:       cfg.Data.Dir,
		OutputDir:     cfg.Output.Dir,
		Encoding:      cfg.Data.Encoding,
		Format:        cfg.Output.Format,
		Join:          cfg.Output.Join,
		GeoJSON:       cfg.Output.GeoJSON,
		SourceSRS:     cfg.Reproject.SourceSRS,
		Concurrency:   cfg.Batch.Concurrency,
		RidingTimeout: time.Duration(cfg.Batch.RidingTimeoutSecs) * time.Second,
	}
}

// Pipeline processes the ridings of one election cycle.
type Pipeline struct {
	manifest    election.Manifest
	opts        Options
	store       store.Store
	reprojector *reproject.Reprojector

	// runID is the ledger id of the run in progress.
	runID string
}

// New creates a Pipeline. st and rp may be nil to skip the ledger and
// reprojection.
func New(m election.Manifest, opts Options, st store.Store, rp *reproject.Reprojector) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Format == "" {
		opts.Format = "csv"
	}
	if opts.SourceSRS == "" {
		opts.SourceSRS = m.SourceSRS
	}
	return &Pipeline{manifest: m, opts: opts, store: st, reprojector: rp}
}

// TablePath is the vote table output for a riding.
func (p *Pipeline) TablePath(riding int) string {
	return filepath.Join(p.opts.OutputDir, fmt.Sprintf("%dResults%d.%s", p.manifest.Year, riding, p.opts.Format))
}

// ShapefilePath is the boundary subset output for a riding.
func (p *Pipeline) ShapefilePath(riding int) string {
	return filepath.Join(p.opts.OutputDir, "RidingFiles", fmt.Sprint(p.manifest.Year), fmt.Sprintf("%d.shp", riding))
}

// ReportPath is the end-of-run report.
func (p *Pipeline) ReportPath() string {
	return filepath.Join(p.opts.OutputDir, fmt.Sprintf("report-%d.yaml", p.manifest.Year))
}

// stageError tags an error with the stage it happened in.
type stageError struct {
	stage model.Stage
	err   error
}

func (e *stageError) Error() string { return string(e.stage) + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func fail(stage model.Stage, err error) error {
	return &stageError{stage: stage, err: err}
}

// Run loads the boundary set once and processes every riding, at most
// Concurrency at a time. A failing riding does not stop the others; its
// failure is recorded in the returned report. Run only errors when the run
// cannot start at all or the context is cancelled.
func (p *Pipeline) Run(ctx context.Context, ridings []int) (*Report, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.Int("year", p.manifest.Year))
	report := &Report{
		Year:      p.manifest.Year,
		StartedAt: time.Now().UTC(),
		Boundary:  p.manifest.BoundaryPath(p.opts.DataDir),
	}

	if p.store != nil {
		run, err := p.store.CreateRun(ctx, p.manifest.Year, len(ridings))
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		report.RunID = run.ID
		p.runID = run.ID
		log = log.With(zap.String("run_id", run.ID))
	}

	log.Info("pipeline: starting", zap.Int("ridings", len(ridings)), zap.Int("concurrency", p.opts.Concurrency))

	set, err := boundary.Load(report.Boundary, p.manifest.RidingField)
	if err != nil {
		p.finish(ctx, report, model.RunStatusFailed)
		return report, eris.Wrap(err, "pipeline: load boundary")
	}
	report.BoundaryRecords = set.Len()
	report.Unparsable = set.Unparsable

	// Each goroutine owns one slot.
	results := make([]model.RidingResult, len(ridings))

	g := new(errgroup.Group)
	g.SetLimit(p.opts.Concurrency)
	for i, riding := range ridings {
		i, riding := i, riding
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = model.RidingResult{
					RunID: p.runID, Riding: riding, Status: model.RidingStatusFailed,
					Stage: model.StageSetup, Error: ctx.Err().Error(),
				}
				return nil
			}
			res := p.ProcessRiding(ctx, set, riding)

			if p.store != nil {
				if err := p.store.RecordRiding(ctx, res); err != nil {
					log.Warn("pipeline: failed to record riding", zap.Int("riding", riding), zap.Error(err))
				}
			}

			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	report.Ridings = results
	for _, r := range results {
		if r.Status == model.RidingStatusOK {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	status := model.RunStatusComplete
	switch {
	case report.Failed > 0 && report.Succeeded == 0:
		status = model.RunStatusFailed
	case report.Failed > 0:
		status = model.RunStatusPartial
	}
	p.finish(ctx, report, status)

	log.Info("pipeline: finished",
		zap.String("status", string(status)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	if err := ctx.Err(); err != nil {
		return report, eris.Wrap(err, "pipeline: cancelled")
	}
	return report, nil
}

func (p *Pipeline) finish(ctx context.Context, report *Report, status model.RunStatus) {
	report.Status = status
	report.FinishedAt = time.Now().UTC()

	if p.store != nil && report.RunID != "" {
		// The ledger should reflect the outcome even if ctx was cancelled.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := p.store.FinishRun(sctx, report.RunID, status, report.Succeeded, report.Failed); err != nil {
			zap.L().Warn("pipeline: failed to finish run", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}
	if err := WriteReport(p.ReportPath(), report); err != nil {
		zap.L().Warn("pipeline: failed to write report", zap.String("path", p.ReportPath()), zap.Error(err))
	}
}

// ProcessRiding runs every stage for one riding against the shared boundary
// set and returns its outcome. Errors are captured in the result.
func (p *Pipeline) ProcessRiding(ctx context.Context, set *boundary.RecordSet, riding int) model.RidingResult {
	log := zap.L().With(zap.String("component", "pipeline"), zap.Int("riding", riding))
	start := time.Now()
	res := model.RidingResult{RunID: p.runID, Riding: riding, Status: model.RidingStatusOK}

	if p.opts.RidingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RidingTimeout)
		defer cancel()
	}

	err := p.processRiding(ctx, set, riding, &res, log)
	res.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		res.Status = model.RidingStatusFailed
		res.Stage = model.StageSetup
		var se *stageError
		if errors.As(err, &se) {
			res.Stage = se.stage
			err = se.err
		}
		res.Error = err.Error()
		log.Error("pipeline: riding failed",
			zap.String("stage", string(res.Stage)),
			zap.Int64("duration_ms", res.DurationMs),
			zap.Error(err),
		)
		return res
	}

	log.Info("pipeline: riding complete",
		zap.Int("stations", res.Stations),
		zap.Int("boundary_records", res.BoundaryRecords),
		zap.Int("joined", res.Joined),
		zap.Int64("duration_ms", res.DurationMs),
	)
	return res
}

func (p *Pipeline) processRiding(ctx context.Context, set *boundary.RecordSet, riding int, res *model.RidingResult, log *zap.Logger) error {
	records, err := votes.ReadFile(ctx, p.manifest.ResultsPath(p.opts.DataDir, riding), votes.ReadOptions{Encoding: p.opts.Encoding})
	if err != nil {
		return fail(model.StageReadVotes, err)
	}
	if err := votes.CheckRiding(records, riding); err != nil {
		return fail(model.StageReadVotes, err)
	}

	table, err := votes.Transform(records)
	if err != nil {
		return fail(model.StageTransform, err)
	}
	res.Candidates = len(table.Candidates)
	res.Stations = table.Len()

	res.TablePath = p.TablePath(riding)
	if err := p.writeTable(res.TablePath, riding, table); err != nil {
		return fail(model.StageWriteVote, err)
	}

	sub := boundary.Subset(set, riding)
	res.BoundaryRecords = sub.Len()
	if sub.Len() == 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("no boundary records for riding %d", riding))
		return nil
	}

	if p.opts.Join {
		joined, mismatch, err := boundary.JoinVoteShares(sub, table, p.manifest.StationField, votes.StationColumn)
		if err != nil {
			return fail(model.StageJoin, err)
		}
		if mismatch != nil {
			res.UnmatchedBoundary = mismatch.UnmatchedSubset
			res.UnmatchedStations = mismatch.UnmatchedTable
			res.Warnings = append(res.Warnings, mismatch.Error())
		}
		res.Joined = joined.Len()
		sub = joined
	}

	res.ShapefilePath = p.ShapefilePath(riding)
	if err := boundary.WriteShapefile(res.ShapefilePath, sub); err != nil {
		return fail(model.StageWriteGeom, err)
	}
	srid := boundary.ParseSRID(p.opts.SourceSRS)
	if p.opts.GeoJSON {
		path := filepath.Join(filepath.Dir(res.ShapefilePath), fmt.Sprintf("%d.geojson", riding))
		if err := boundary.WriteGeoJSON(path, sub, srid); err != nil {
			return fail(model.StageWriteGeom, err)
		}
	}

	if p.reprojector != nil {
		dst, cached, err := p.reprojector.Reproject(ctx, res.ShapefilePath)
		if err != nil {
			return fail(model.StageReproject, err)
		}
		res.ReprojectedPath = dst
		log.Debug("pipeline: reprojected", zap.String("path", dst), zap.Bool("cached", cached))
	}

	if p.store != nil && p.opts.Join && res.RunID != "" {
		stations, err := stationGeometries(sub, table, p.manifest.StationField, srid)
		if err != nil {
			return fail(model.StageStore, err)
		}
		if err := p.store.SaveStations(ctx, res.RunID, riding, stations); err != nil {
			return fail(model.StageStore, err)
		}
	}
	return nil
}

func (p *Pipeline) writeTable(path string, riding int, table *votes.Table) error {
	if p.opts.Format == "xlsx" {
		return votes.WriteXLSX(path, fmt.Sprint(riding), table)
	}
	return votes.WriteCSV(path, table)
}

// stationGeometries converts a joined subset into ledger rows.
func stationGeometries(sub *boundary.RidingSubset, table *votes.Table, stationField string, srid int) ([]model.StationGeometry, error) {
	keyIdx := boundary.FieldIndex(sub.Fields, stationField)
	if keyIdx < 0 {
		return nil, &boundary.SchemaError{Field: stationField, Available: boundary.FieldNames(sub.Fields)}
	}

	out := make([]model.StationGeometry, 0, sub.Len())
	for _, rec := range sub.Records {
		key := boundary.StationKey(rec.Attributes[keyIdx])
		row, ok := table.Lookup(key)
		if !ok {
			continue
		}
		wkb, err := boundary.EncodeWKB(rec.Shape, srid)
		if err != nil {
			return nil, err
		}
		shares := make(map[string]float64, len(table.Candidates))
		for i, c := range table.Candidates {
			shares[c] = row.Percent[i]
		}
		out = append(out, model.StationGeometry{
			Station: key,
			SRID:    srid,
			WKB:     wkb,
			Area:    boundary.Area(rec.Shape),
			Total:   row.Total,
			Shares:  shares,
		})
	}
	return out, nil
}
