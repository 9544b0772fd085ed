// Package store persists the run ledger: runs, per-riding outcomes and the
// joined polling-district geometries.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/riding-cli/internal/config"
	"github.com/sells-group/riding-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Year   int             `json:"year,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// Store defines the persistence interface for the batch pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, year, ridings int) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, succeeded, failed int) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Ridings
	RecordRiding(ctx context.Context, result model.RidingResult) error
	ListRidings(ctx context.Context, runID string) ([]model.RidingResult, error)

	// Geometry
	SaveStations(ctx context.Context, runID string, riding int, stations []model.StationGeometry) error
	ListStations(ctx context.Context, runID string, riding int) ([]model.StationGeometry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg, migrated and ready. The "none"
// driver returns a nil Store.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "", "sqlite":
		st, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
