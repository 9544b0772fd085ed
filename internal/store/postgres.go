package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/riding-cli/internal/db"
	"github.com/sells-group/riding-cli/internal/model"
)

// PostgresStore implements Store on PostgreSQL with PostGIS. Station
// geometries are loaded with COPY and exposed as a geometry column.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 8
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// stationColumns are the COPY columns of station_geometries; geom is
// generated from wkb.
var stationColumns = []string{"run_id", "riding", "position", "station", "srid", "wkb", "area", "total", "shares"}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	year       INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	ridings    INTEGER NOT NULL DEFAULT 0,
	succeeded  INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS riding_results (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	riding     INTEGER NOT NULL,
	status     TEXT NOT NULL,
	result     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, riding)
);

CREATE TABLE IF NOT EXISTS station_geometries (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	riding   INTEGER NOT NULL,
	position INTEGER NOT NULL,
	station  TEXT NOT NULL,
	srid     INTEGER NOT NULL DEFAULT 0,
	wkb      BYTEA,
	geom     geometry GENERATED ALWAYS AS (ST_GeomFromEWKB(wkb)) STORED,
	area     DOUBLE PRECISION NOT NULL DEFAULT 0,
	total    INTEGER NOT NULL DEFAULT 0,
	shares   JSONB NOT NULL,
	PRIMARY KEY (run_id, riding, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_year ON runs(year);
CREATE INDEX IF NOT EXISTS idx_riding_results_status ON riding_results(status);
CREATE INDEX IF NOT EXISTS idx_station_geometries_station ON station_geometries(run_id, riding, station);
CREATE INDEX IF NOT EXISTS idx_station_geometries_geom ON station_geometries USING GIST (geom);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, year, ridings int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, year, status, ridings, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, year, string(model.RunStatusRunning), ridings, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Year:      year,
		Status:    model.RunStatusRunning,
		Ridings:   ridings,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, succeeded, failed int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, succeeded = $2, failed = $3, updated_at = $4 WHERE id = $5`,
		string(status), succeeded, failed, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	err := s.pool.QueryRow(ctx,
		`SELECT id, year, status, ridings, succeeded, failed, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Year, &r.Status, &r.Ridings, &r.Succeeded, &r.Failed, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, year, status, ridings, succeeded, failed, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Year != 0 {
		query += fmt.Sprintf(` AND year = $%d`, argIdx)
		args = append(args, filter.Year)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(&r.ID, &r.Year, &r.Status, &r.Ridings, &r.Succeeded, &r.Failed, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordRiding(ctx context.Context, result model.RidingResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal riding result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO riding_results (run_id, riding, status, result, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id, riding) DO UPDATE SET status = EXCLUDED.status, result = EXCLUDED.result, updated_at = EXCLUDED.updated_at`,
		result.RunID, result.Riding, string(result.Status), resultJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: record riding %d", result.Riding)
}

func (s *PostgresStore) ListRidings(ctx context.Context, runID string) ([]model.RidingResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT result FROM riding_results WHERE run_id = $1 ORDER BY riding`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ridings")
	}
	defer rows.Close()

	var out []model.RidingResult
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan riding")
		}
		var r model.RidingResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal riding result")
		}
		r.RunID = runID
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list ridings iterate")
}

// SaveStations replaces the stored geometries for one riding of a run in a
// single transaction, bulk-loading the new rows with COPY. A station may own
// several polygons; rows are keyed by their position.
func (s *PostgresStore) SaveStations(ctx context.Context, runID string, riding int, stations []model.StationGeometry) error {
	rows := make([][]any, 0, len(stations))
	for i, st := range stations {
		shares, err := json.Marshal(st.Shares)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal shares")
		}
		rows = append(rows, []any{runID, riding, i, st.Station, st.SRID, st.WKB, st.Area, st.Total, shares})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM station_geometries WHERE run_id = $1 AND riding = $2`, runID, riding); err != nil {
		return eris.Wrapf(err, "postgres: clear stations for riding %d", riding)
	}
	if _, err := db.CopyFrom(ctx, tx, "station_geometries", stationColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: load stations for riding %d", riding)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit stations")
}

func (s *PostgresStore) ListStations(ctx context.Context, runID string, riding int) ([]model.StationGeometry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT station, srid, wkb, area, total, shares FROM station_geometries
		 WHERE run_id = $1 AND riding = $2 ORDER BY position`, runID, riding)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stations")
	}
	defer rows.Close()

	var out []model.StationGeometry
	for rows.Next() {
		var (
			st     model.StationGeometry
			shares []byte
		)
		if err := rows.Scan(&st.Station, &st.SRID, &st.WKB, &st.Area, &st.Total, &shares); err != nil {
			return nil, eris.Wrap(err, "postgres: scan station")
		}
		if err := json.Unmarshal(shares, &st.Shares); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal shares")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list stations iterate")
}
