// Package store defines the persistence interfaces the controller and the
// HTTP API depend on, plus two implementations: a gorm-backed one for
// production and an in-memory one for tests.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/pymada-go/pymada/pkg/models"
)

// TaskStore persists UrlTask rows.
type TaskStore interface {
	Create(ctx context.Context, t *models.UrlTask) error
	CreateMany(ctx context.Context, tasks []*models.UrlTask) error
	Get(ctx context.Context, id uuid.UUID) (*models.UrlTask, error)
	List(ctx context.Context, minID, maxID *uuid.UUID) ([]*models.UrlTask, error)
	CountByState(ctx context.Context, state models.TaskState) (int64, error)
	CountFailedAtLeastOnce(ctx context.Context) (int64, error)

	// NextQueued returns the queued task with the fewest prior failures,
	// breaking ties by earliest creation, or nil if none are queued.
	NextQueued(ctx context.Context) (*models.UrlTask, error)

	// Assign atomically marks a task ASSIGNED to agentID with the given
	// start time, iff it is still QUEUED.
	Assign(ctx context.Context, taskID, agentID uuid.UUID, startTime int64) error

	// Complete stores the final result and timestamps, clears the
	// assignment, and marks the task COMPLETE.
	Complete(ctx context.Context, taskID uuid.UUID, result *string, endTime int64) error

	// Requeue increments fail_num and either sends the task back to
	// QUEUED or marks it COMPLETE if maxRetries has been reached,
	// clearing the assignment either way.
	Requeue(ctx context.Context, taskID uuid.UUID, maxRetries int) error

	// Unassign reverts a task from ASSIGNED back to QUEUED without
	// touching fail_num, for when an agent never actually accepted the
	// task handed to it (e.g. /start_run was unreachable).
	Unassign(ctx context.Context, taskID uuid.UUID) error
}

// AgentStore persists Agent rows.
type AgentStore interface {
	Create(ctx context.Context, a *models.Agent) error
	Get(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	FindByIdentity(ctx context.Context, hostname, agentURL string) (*models.Agent, error)
	List(ctx context.Context, minID, maxID *uuid.UUID) ([]*models.Agent, error)
	ListStaleSince(ctx context.Context, cutoffUnix int64) ([]*models.Agent, error)
	Count(ctx context.Context) (int64, error)

	UpdateState(ctx context.Context, id uuid.UUID, state models.AgentState) error
	TouchLastContact(ctx context.Context, id uuid.UUID, when int64) error
	AssignTask(ctx context.Context, agentID uuid.UUID, taskID uuid.UUID) error
	ClearAssignedTask(ctx context.Context, agentID uuid.UUID) error
	SetAssignedRunner(ctx context.Context, agentID, runnerID uuid.UUID) error
}

// RunnerStore persists Runner rows.
type RunnerStore interface {
	Create(ctx context.Context, r *models.Runner) error
	Get(ctx context.Context, id uuid.UUID) (*models.Runner, error)
	List(ctx context.Context) ([]*models.Runner, error)
}

// ErrorLogStore persists ErrorLog rows.
type ErrorLogStore interface {
	Create(ctx context.Context, e *models.ErrorLog) error
	List(ctx context.Context, minID, maxID *uuid.UUID) ([]*models.ErrorLog, error)
	Count(ctx context.Context) (int64, error)
}

// ScreenshotStore persists Screenshot rows and their image bytes.
type ScreenshotStore interface {
	Create(ctx context.Context, s *models.Screenshot) error
	Get(ctx context.Context, id uuid.UUID) (*models.Screenshot, error)
	List(ctx context.Context, minID, maxID *uuid.UUID) ([]*models.Screenshot, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Screenshot, error)
}

// Store bundles every repository the server needs, the way
// jordie-GAIA_GO's Registry bundles its repositories.
type Store interface {
	Tasks() TaskStore
	Agents() AgentStore
	Runners() RunnerStore
	ErrorLogs() ErrorLogStore
	Screenshots() ScreenshotStore
	Close() error
}
