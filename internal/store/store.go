// Package store persists the run registry: one row per CLI or API
// enrichment, with status, source, and output shape.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/vergilyu/geoai-retail/internal/config"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run records one enrichment or ingest invocation.
type Run struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Source    string    `json:"source"`
	Status    RunStatus `json:"status"`
	Rows      int       `json:"rows"`
	Columns   int       `json:"columns"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run registry.
type Store interface {
	CreateRun(ctx context.Context, command, source string) (*Run, error)
	CompleteRun(ctx context.Context, runID string, rows, columns int, output string) error
	FailRun(ctx context.Context, runID string, message string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
