package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/riding-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: empty database path")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; one connection keeps them in force and
	// serializes writers from parallel ridings.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	year       INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	ridings    INTEGER NOT NULL DEFAULT 0,
	succeeded  INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS riding_results (
	run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	riding  INTEGER NOT NULL,
	status  TEXT NOT NULL,
	result  TEXT NOT NULL,
	PRIMARY KEY (run_id, riding)
);

CREATE TABLE IF NOT EXISTS station_geometries (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	riding   INTEGER NOT NULL,
	position INTEGER NOT NULL,
	station  TEXT NOT NULL,
	srid     INTEGER NOT NULL DEFAULT 0,
	geom     BLOB,
	area     REAL NOT NULL DEFAULT 0,
	total    INTEGER NOT NULL DEFAULT 0,
	shares   TEXT NOT NULL,
	PRIMARY KEY (run_id, riding, position)
);

CREATE INDEX IF NOT EXISTS idx_station_geometries_station ON station_geometries(run_id, riding, station);

CREATE INDEX IF NOT EXISTS idx_runs_year ON runs(year);
CREATE INDEX IF NOT EXISTS idx_riding_results_status ON riding_results(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, year, ridings int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, year, status, ridings, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, year, string(model.RunStatusRunning), ridings, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, succeeded, failed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, succeeded = ?, failed = ?, updated_at = ? WHERE id = ?`,
		string(status), succeeded, failed, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, year, status, ridings, succeeded, failed, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, year, status, ridings, succeeded, failed, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Year != 0 {
		query += ` AND year = ?`
		args = append(args, filter.Year)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// RecordRiding stores a riding outcome, replacing any earlier one for the
// same run and riding.
func (s *SQLiteStore) RecordRiding(ctx context.Context, result model.RidingResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal riding result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO riding_results (run_id, riding, status, result) VALUES (?, ?, ?, ?)
		 ON CONFLICT (run_id, riding) DO UPDATE SET status = excluded.status, result = excluded.result`,
		result.RunID, result.Riding, string(result.Status), string(resultJSON),
	)
	return eris.Wrapf(err, "sqlite: record riding %d", result.Riding)
}

func (s *SQLiteStore) ListRidings(ctx context.Context, runID string) ([]model.RidingResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT result FROM riding_results WHERE run_id = ? ORDER BY riding`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ridings")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RidingResult
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan riding")
		}
		var r model.RidingResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal riding result")
		}
		r.RunID = runID
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list ridings iterate")
}

// SaveStations replaces the stored geometries for one riding of a run. A
// station may own several polygons; rows are keyed by their position.
func (s *SQLiteStore) SaveStations(ctx context.Context, runID string, riding int, stations []model.StationGeometry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM station_geometries WHERE run_id = ? AND riding = ?`, runID, riding); err != nil {
		return eris.Wrapf(err, "sqlite: clear stations for riding %d", riding)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO station_geometries (run_id, riding, position, station, srid, geom, area, total, shares)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare station insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, st := range stations {
		shares, err := json.Marshal(st.Shares)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal shares")
		}
		if _, err := stmt.ExecContext(ctx, runID, riding, i, st.Station, st.SRID, st.WKB, st.Area, st.Total, string(shares)); err != nil {
			return eris.Wrapf(err, "sqlite: insert station %s", st.Station)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit stations")
}

func (s *SQLiteStore) ListStations(ctx context.Context, runID string, riding int) ([]model.StationGeometry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT station, srid, geom, area, total, shares FROM station_geometries
		 WHERE run_id = ? AND riding = ? ORDER BY position`, runID, riding)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StationGeometry
	for rows.Next() {
		var (
			st     model.StationGeometry
			shares string
		)
		if err := rows.Scan(&st.Station, &st.SRID, &st.WKB, &st.Area, &st.Total, &shares); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan station")
		}
		if err := json.Unmarshal([]byte(shares), &st.Shares); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal shares")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list stations iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	err := row.Scan(&r.ID, &r.Year, &r.Status, &r.Ridings, &r.Succeeded, &r.Failed, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	return &r, nil
}
