package store

import (
	"context"

	"github.com/seantiz/comfybridge/internal/model"
)

// Store persists run records.
type Store interface {
	// CreateRun inserts a new run record.
	CreateRun(ctx context.Context, r *model.Run) error

	// GetRun retrieves a run by ID. Returns ErrNotFound if absent.
	GetRun(ctx context.Context, id string) (*model.Run, error)

	// ListRuns returns a paginated list of runs ordered by created_at DESC,
	// along with the total count.
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)

	// UpdateRunStatus updates the status of a run; terminal statuses also
	// set finished_at. Updating a run already in a terminal state returns
	// ErrFinalized.
	UpdateRunStatus(ctx context.Context, id, status string) error

	// UpdateRun overwrites the mutable fields of a run from r. Updating a
	// run already in a terminal state returns ErrFinalized.
	UpdateRun(ctx context.Context, r *model.Run) error

	// Close releases the underlying resources.
	Close() error
}
