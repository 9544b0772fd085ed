// Package model holds the run ledger types shared by the pipeline, the
// store and the CLI.
package model

import "time"

// RunStatus represents the current state of a batch run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete" // every riding succeeded
	RunStatusPartial  RunStatus = "partial"  // some ridings failed
	RunStatusFailed   RunStatus = "failed"   // no riding succeeded, or setup failed
)

// Stage names a step of per-riding processing. Failures record the stage
// they happened in.
type Stage string

const (
	StageSetup     Stage = "setup"
	StageReadVotes Stage = "read_votes"
	StageTransform Stage = "transform"
	StageWriteVote Stage = "write_table"
	StageSubset    Stage = "subset"
	StageJoin      Stage = "join"
	StageWriteGeom Stage = "write_geometry"
	StageReproject Stage = "reproject"
	StageStore     Stage = "store"
)

// RidingStatus is the outcome of one riding.
type RidingStatus string

const (
	RidingStatusOK     RidingStatus = "ok"
	RidingStatusFailed RidingStatus = "failed"
)

// Run is one invocation of the batch over an election year.
type Run struct {
	ID        string    `json:"id" yaml:"id"`
	Year      int       `json:"year" yaml:"year"`
	Status    RunStatus `json:"status" yaml:"status"`
	Ridings   int       `json:"ridings" yaml:"ridings"`
	Succeeded int       `json:"succeeded" yaml:"succeeded"`
	Failed    int       `json:"failed" yaml:"failed"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// RidingResult records what happened to one riding within a run.
type RidingResult struct {
	RunID             string       `json:"run_id" yaml:"-"`
	Riding            int          `json:"riding" yaml:"riding"`
	Status            RidingStatus `json:"status" yaml:"status"`
	Stage             Stage        `json:"stage,omitempty" yaml:"stage,omitempty"`
	Error             string       `json:"error,omitempty" yaml:"error,omitempty"`
	Candidates        int          `json:"candidates" yaml:"candidates"`
	Stations          int          `json:"stations" yaml:"stations"`
	BoundaryRecords   int          `json:"boundary_records" yaml:"boundary_records"`
	Joined            int          `json:"joined" yaml:"joined"`
	UnmatchedBoundary int          `json:"unmatched_boundary" yaml:"unmatched_boundary"`
	UnmatchedStations int          `json:"unmatched_stations" yaml:"unmatched_stations"`
	Warnings          []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	TablePath         string       `json:"table_path,omitempty" yaml:"table_path,omitempty"`
	ShapefilePath     string       `json:"shapefile_path,omitempty" yaml:"shapefile_path,omitempty"`
	ReprojectedPath   string       `json:"reprojected_path,omitempty" yaml:"reprojected_path,omitempty"`
	DurationMs        int64        `json:"duration_ms" yaml:"duration_ms"`
}

// StationGeometry is one joined polling-district polygon with its shares.
type StationGeometry struct {
	Station string             `json:"station"`
	SRID    int                `json:"srid"`
	WKB     []byte             `json:"-"`
	Area    float64            `json:"area"`
	Total   int                `json:"total"`
	Shares  map[string]float64 `json:"shares"`
}
