package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pymada-go/pymada/pkg/models"
)

// MemStore is an in-memory Store, used by controller and HTTP API unit
// tests so they don't need a real database. There is no library backing
// this; it is a bare sync.Mutex-guarded set of maps, matching the method
// sets the gorm-backed Store exposes.
type MemStore struct {
	mu          sync.Mutex
	tasks       map[uuid.UUID]*models.UrlTask
	agents      map[uuid.UUID]*models.Agent
	runners     map[uuid.UUID]*models.Runner
	errorLogs   map[uuid.UUID]*models.ErrorLog
	screenshots map[uuid.UUID]*models.Screenshot
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{
		tasks:       make(map[uuid.UUID]*models.UrlTask),
		agents:      make(map[uuid.UUID]*models.Agent),
		runners:     make(map[uuid.UUID]*models.Runner),
		errorLogs:   make(map[uuid.UUID]*models.ErrorLog),
		screenshots: make(map[uuid.UUID]*models.Screenshot),
	}
}

func (m *MemStore) Tasks() TaskStore             { return (*memTaskStore)(m) }
func (m *MemStore) Agents() AgentStore           { return (*memAgentStore)(m) }
func (m *MemStore) Runners() RunnerStore         { return (*memRunnerStore)(m) }
func (m *MemStore) ErrorLogs() ErrorLogStore     { return (*memErrorLogStore)(m) }
func (m *MemStore) Screenshots() ScreenshotStore { return (*memScreenshotStore)(m) }
func (m *MemStore) Close() error                 { return nil }

type memTaskStore MemStore

func (m *memTaskStore) Create(_ context.Context, t *models.UrlTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.TaskState == "" {
		t.TaskState = models.TaskQueued
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memTaskStore) CreateMany(ctx context.Context, tasks []*models.UrlTask) error {
	for _, t := range tasks {
		if err := m.Create(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (m *memTaskStore) Get(_ context.Context, id uuid.UUID) (*models.UrlTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskStore) List(_ context.Context, minID, maxID *uuid.UUID) ([]*models.UrlTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.UrlTask
	for _, t := range m.tasks {
		if minID != nil && t.ID.String() < minID.String() {
			continue
		}
		if maxID != nil && t.ID.String() > maxID.String() {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memTaskStore) CountByState(_ context.Context, state models.TaskState) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tasks {
		if t.TaskState == state {
			n++
		}
	}
	return n, nil
}

func (m *memTaskStore) CountFailedAtLeastOnce(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tasks {
		if t.FailNum >= 1 {
			n++
		}
	}
	return n, nil
}

func (m *memTaskStore) NextQueued(_ context.Context) (*models.UrlTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.UrlTask
	for _, t := range m.tasks {
		if t.TaskState != models.TaskQueued {
			continue
		}
		if best == nil || t.FailNum < best.FailNum ||
			(t.FailNum == best.FailNum && t.CreatedAt.Before(best.CreatedAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *memTaskStore) Assign(_ context.Context, taskID, agentID uuid.UUID, startTime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("assign task: %s not found", taskID)
	}
	if t.TaskState != models.TaskQueued {
		return fmt.Errorf("assign task: task %s was not queued", taskID)
	}
	t.TaskState = models.TaskAssigned
	t.AssignedAgentID = &agentID
	t.StartTime = startTime
	return nil
}

func (m *memTaskStore) Complete(_ context.Context, taskID uuid.UUID, result *string, endTime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("complete task: %s not found", taskID)
	}
	t.TaskState = models.TaskComplete
	t.TaskResult = result
	t.EndTime = &endTime
	t.AssignedAgentID = nil
	return nil
}

func (m *memTaskStore) Unassign(_ context.Context, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("unassign task: %s not found", taskID)
	}
	t.TaskState = models.TaskQueued
	t.AssignedAgentID = nil
	t.StartTime = 0
	return nil
}

func (m *memTaskStore) Requeue(_ context.Context, taskID uuid.UUID, maxRetries int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("requeue task: %s not found", taskID)
	}
	t.FailNum++
	t.StartTime = 0
	t.AssignedAgentID = nil
	if t.ExhaustedRetries(maxRetries) {
		t.TaskState = models.TaskComplete
	} else {
		t.TaskState = models.TaskQueued
	}
	return nil
}

type memAgentStore MemStore

func (m *memAgentStore) Create(_ context.Context, a *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	cp := *a
	m.agents[a.ID] = &cp
	return nil
}

func (m *memAgentStore) Get(_ context.Context, id uuid.UUID) (*models.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memAgentStore) FindByIdentity(_ context.Context, hostname, agentURL string) (*models.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.agents {
		if a.Hostname == hostname && a.AgentURL == agentURL {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memAgentStore) List(_ context.Context, minID, maxID *uuid.UUID) ([]*models.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Agent
	for _, a := range m.agents {
		if minID != nil && a.ID.String() < minID.String() {
			continue
		}
		if maxID != nil && a.ID.String() > maxID.String() {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memAgentStore) ListStaleSince(_ context.Context, cutoffUnix int64) ([]*models.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Agent
	for _, a := range m.agents {
		if a.LastContactAttempt <= cutoffUnix {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAgentStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.agents)), nil
}

func (m *memAgentStore) UpdateState(_ context.Context, id uuid.UUID, state models.AgentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return fmt.Errorf("update agent state: %s not found", id)
	}
	a.AgentState = state
	return nil
}

func (m *memAgentStore) TouchLastContact(_ context.Context, id uuid.UUID, when int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return fmt.Errorf("touch agent last contact: %s not found", id)
	}
	a.LastContactAttempt = when
	return nil
}

func (m *memAgentStore) AssignTask(_ context.Context, agentID, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[agentID]
	if !ok {
		return fmt.Errorf("assign task to agent: %s not found", agentID)
	}
	a.AgentState = models.AgentAssigned
	a.AssignedTaskID = &taskID
	return nil
}

func (m *memAgentStore) ClearAssignedTask(_ context.Context, agentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[agentID]
	if !ok {
		return fmt.Errorf("clear assigned task: %s not found", agentID)
	}
	a.AssignedTaskID = nil
	return nil
}

func (m *memAgentStore) SetAssignedRunner(_ context.Context, agentID, runnerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[agentID]
	if !ok {
		return fmt.Errorf("set assigned runner: %s not found", agentID)
	}
	a.AssignedRunnerID = &runnerID
	return nil
}

type memRunnerStore MemStore

func (m *memRunnerStore) Create(_ context.Context, r *models.Runner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	cp := *r
	m.runners[r.ID] = &cp
	return nil
}

func (m *memRunnerStore) Get(_ context.Context, id uuid.UUID) (*models.Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runners[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memRunnerStore) List(_ context.Context) ([]*models.Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Runner
	for _, r := range m.runners {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

type memErrorLogStore MemStore

func (m *memErrorLogStore) Create(_ context.Context, e *models.ErrorLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	cp := *e
	m.errorLogs[e.ID] = &cp
	return nil
}

func (m *memErrorLogStore) List(_ context.Context, minID, maxID *uuid.UUID) ([]*models.ErrorLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ErrorLog
	for _, e := range m.errorLogs {
		if minID != nil && e.ID.String() < minID.String() {
			continue
		}
		if maxID != nil && e.ID.String() > maxID.String() {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *memErrorLogStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.errorLogs)), nil
}

type memScreenshotStore MemStore

func (m *memScreenshotStore) Create(_ context.Context, s *models.Screenshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	cp := *s
	m.screenshots[s.ID] = &cp
	return nil
}

func (m *memScreenshotStore) Get(_ context.Context, id uuid.UUID) (*models.Screenshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.screenshots[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memScreenshotStore) List(_ context.Context, minID, maxID *uuid.UUID) ([]*models.Screenshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Screenshot
	for _, s := range m.screenshots {
		if minID != nil && s.ID.String() < minID.String() {
			continue
		}
		if maxID != nil && s.ID.String() > maxID.String() {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *memScreenshotStore) ListByTask(_ context.Context, taskID uuid.UUID) ([]*models.Screenshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Screenshot
	for _, s := range m.screenshots {
		if s.TaskID == taskID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
