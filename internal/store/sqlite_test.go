package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riding-cli/internal/config"
	"github.com/sells-group/riding-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_CreateAndFinishRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, 2011, 2)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusPartial, 1, 1))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2011, got.Year)
	assert.Equal(t, model.RunStatusPartial, got.Status)
	assert.Equal(t, 2, got.Ridings)
	assert.Equal(t, 1, got.Succeeded)
	assert.Equal(t, 1, got.Failed)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLite_FinishRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.FinishRun(context.Background(), "missing", model.RunStatusComplete, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: missing")
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r2008, err := st.CreateRun(ctx, 2008, 1)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, 2011, 2)
	require.NoError(t, err)
	r3, err := st.CreateRun(ctx, 2011, 3)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, r3.ID, model.RunStatusComplete, 3, 0))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	y2011, err := st.ListRuns(ctx, RunFilter{Year: 2011})
	require.NoError(t, err)
	assert.Len(t, y2011, 2)

	done, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, r3.ID, done[0].ID)

	limited, err := st.ListRuns(ctx, RunFilter{Year: 2008, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, r2008.ID, limited[0].ID)
}

func TestSQLite_RecordRiding_Upserts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, 2011, 2)
	require.NoError(t, err)

	require.NoError(t, st.RecordRiding(ctx, model.RidingResult{
		RunID: run.ID, Riding: 13008, Status: model.RidingStatusFailed,
		Stage: model.StageReadVotes, Error: "votes: open",
	}))
	require.NoError(t, st.RecordRiding(ctx, model.RidingResult{
		RunID: run.ID, Riding: 13003, Status: model.RidingStatusOK,
		Stations: 48, BoundaryRecords: 50, Joined: 48, UnmatchedBoundary: 2,
		Warnings: []string{"join mismatch"},
	}))
	require.NoError(t, st.RecordRiding(ctx, model.RidingResult{
		RunID: run.ID, Riding: 13008, Status: model.RidingStatusOK, Stations: 12,
	}))

	ridings, err := st.ListRidings(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, ridings, 2)
	assert.Equal(t, 13003, ridings[0].Riding)
	assert.Equal(t, run.ID, ridings[0].RunID)
	assert.Equal(t, 2, ridings[0].UnmatchedBoundary)
	assert.Equal(t, []string{"join mismatch"}, ridings[0].Warnings)
	assert.Equal(t, model.RidingStatusOK, ridings[1].Status)
	assert.Empty(t, ridings[1].Error)
}

func TestSQLite_RecordRiding_UnknownRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.RecordRiding(context.Background(), model.RidingResult{RunID: "nope", Riding: 1, Status: model.RidingStatusOK})
	require.Error(t, err, "foreign keys are enforced")
}

func TestSQLite_SaveStations_Replaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, 2011, 1)
	require.NoError(t, err)

	first := []model.StationGeometry{
		{Station: "1", SRID: 4269, WKB: []byte{1, 2, 3}, Area: 1.5, Total: 40, Shares: map[string]float64{"Ann X / Liberal": 75}},
		{Station: "2", SRID: 4269, WKB: []byte{4}, Total: 0, Shares: map[string]float64{"Ann X / Liberal": 0}},
	}
	require.NoError(t, st.SaveStations(ctx, run.ID, 13003, first))
	require.NoError(t, st.SaveStations(ctx, run.ID, 13003, first[:1]))

	got, err := st.ListStations(ctx, run.ID, 13003)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].Station)
	assert.Equal(t, 4269, got[0].SRID)
	assert.Equal(t, []byte{1, 2, 3}, got[0].WKB)
	assert.InDelta(t, 1.5, got[0].Area, 1e-9)
	assert.Equal(t, 40, got[0].Total)
	assert.InDelta(t, 75.0, got[0].Shares["Ann X / Liberal"], 1e-9)

	other, err := st.ListStations(ctx, run.ID, 13008)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLite_SaveStations_SharedStation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, 2011, 1)
	require.NoError(t, err)

	// One polling station split over two polygons.
	shares := map[string]float64{"Ann X / Liberal": 60}
	require.NoError(t, st.SaveStations(ctx, run.ID, 13003, []model.StationGeometry{
		{Station: "101", WKB: []byte{1}, Area: 2, Total: 50, Shares: shares},
		{Station: "101", WKB: []byte{2}, Area: 3, Total: 50, Shares: shares},
		{Station: "102", WKB: []byte{3}, Area: 1, Total: 20, Shares: shares},
	}))

	got, err := st.ListStations(ctx, run.ID, 13003)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "101", got[0].Station)
	assert.Equal(t, []byte{1}, got[0].WKB)
	assert.Equal(t, "101", got[1].Station)
	assert.Equal(t, []byte{2}, got[1].WKB)
	assert.Equal(t, "102", got[2].Station)
}

func TestNewSQLite_EmptyPath(t *testing.T) {
	_, err := NewSQLite("")
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, config.StoreConfig{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "riding.db")})
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	_, err = st.CreateRun(ctx, 2011, 0)
	require.NoError(t, err, "store is migrated")

	_, err = Open(ctx, config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
