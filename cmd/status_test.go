package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/riding-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Year:      2011,
			Status:    model.RunStatusPartial,
			Ridings:   2,
			Succeeded: 1,
			Failed:    1,
			CreatedAt: now,
			UpdatedAt: now.Add(90 * time.Second),
		},
		{
			ID:        "def12345",
			Year:      2008,
			Status:    model.RunStatusRunning,
			CreatedAt: now.Add(-time.Hour),
			UpdatedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "YEAR")
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-6789")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "2011")
	assert.Contains(t, out, "2026-05-04 10:30")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "running")
}

func TestFormatRunDetail(t *testing.T) {
	run := &model.Run{ID: "run-1", Year: 2011, Status: model.RunStatusPartial, Ridings: 2, Succeeded: 1, Failed: 1}
	ridings := []model.RidingResult{
		{Riding: 13003, Status: model.RidingStatusOK, Stations: 180, BoundaryRecords: 178, Joined: 176,
			Warnings: []string{"join mismatch"}},
		{Riding: 13008, Status: model.RidingStatusFailed, Stage: model.StageTransform, Error: "duplicate candidate"},
	}

	var buf bytes.Buffer
	formatRunDetail(&buf, run, ridings)

	out := buf.String()
	assert.Contains(t, out, "Run run-1 (2011): partial, 1/2 ridings succeeded")
	assert.Contains(t, out, "13003")
	assert.Contains(t, out, "176")
	assert.Contains(t, out, "join mismatch")
	assert.Contains(t, out, "transform: duplicate candidate")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}
