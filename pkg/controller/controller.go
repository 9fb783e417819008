// Package controller implements the master's supervision loop: one
// goroutine per registered agent that polls its status, enforces task
// deadlines, sweeps silently-failed assignments back onto the queue, and
// hands idle agents their next task.
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pymada-go/pymada/internal/logging"
	"github.com/pymada-go/pymada/internal/metrics"
	"github.com/pymada-go/pymada/pkg/models"
	"github.com/pymada-go/pymada/pkg/store"
)

// Config mirrors the original Control class's constructor arguments, plus
// the registration-scan and per-agent polling cadences the Go port adds.
type Config struct {
	MaxTaskDuration      time.Duration
	MaxTaskRetries       int
	RegistrationInterval time.Duration // how often to scan for newly registered agents
	SupervisionInterval  time.Duration // how often each agent is polled
	RequestTimeout       time.Duration // per-HTTP-call timeout, 2s in the original
}

// DefaultConfig matches the original's defaults (5 minute deadline, 3
// retries) plus a 2s poll cadence for both scanning and supervision.
func DefaultConfig() Config {
	return Config{
		MaxTaskDuration:      5 * time.Minute,
		MaxTaskRetries:       3,
		RegistrationInterval: 2 * time.Second,
		SupervisionInterval:  2 * time.Second,
		RequestTimeout:       2 * time.Second,
	}
}

// Controller is the master's per-agent supervision engine.
type Controller struct {
	store   store.Store
	cfg     Config
	log     *logging.Logger
	metrics *metrics.Registry
	client  *http.Client

	// assignMu is the single process-wide assign lock: it serializes the
	// next-queued lookup and the claim that flips a task to ASSIGNED, so
	// no two supervision goroutines can ever claim the same task. It is
	// released before the outbound /start_run call so that call's
	// network latency never blocks another agent's assignment.
	assignMu sync.Mutex

	mu          sync.Mutex
	supervising map[uuid.UUID]context.CancelFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Controller. log and metrics may be nil for tests that
// don't care about observability.
func New(st store.Store, cfg Config, log *logging.Logger, m *metrics.Registry) *Controller {
	if log == nil {
		log = logging.New()
	}
	return &Controller{
		store:       st,
		cfg:         cfg,
		log:         log,
		metrics:     m,
		client:      &http.Client{Timeout: cfg.RequestTimeout},
		supervising: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start begins the registration-scan loop, which discovers newly
// registered agents and starts a supervision goroutine for each.
func (c *Controller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.RegistrationInterval)
		defer ticker.Stop()

		c.scanForAgents(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.scanForAgents(ctx)
			}
		}
	}()

	c.log.Infof("CONTROLLER", "supervision loop started")
	return nil
}

// Stop cancels every supervision goroutine and waits for them to exit.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.log.Infof("CONTROLLER", "supervision loop stopped")
}

func (c *Controller) scanForAgents(ctx context.Context) {
	agents, err := c.store.Agents().List(ctx, nil, nil)
	if err != nil {
		c.log.Errorf("CONTROLLER", "list agents: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range agents {
		if _, ok := c.supervising[a.ID]; ok {
			continue
		}
		agentCtx, cancel := context.WithCancel(ctx)
		c.supervising[a.ID] = cancel
		c.wg.Add(1)
		go c.superviseAgent(agentCtx, a.ID)
	}
}

func (c *Controller) superviseAgent(ctx context.Context, agentID uuid.UUID) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.SupervisionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.superviseOnce(ctx, agentID)
		}
	}
}

// superviseOnce runs one cycle of the original loop()'s per-agent body:
// check_status then check_task_duration.
func (c *Controller) superviseOnce(ctx context.Context, agentID uuid.UUID) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.SupervisionCycle.Observe(time.Since(start).Seconds())
		}
	}()

	agent, err := c.store.Agents().Get(ctx, agentID)
	if err != nil || agent == nil {
		return
	}

	c.checkStatus(ctx, agent)

	// Re-fetch: checkStatus may have mutated state/assignment.
	agent, err = c.store.Agents().Get(ctx, agentID)
	if err != nil || agent == nil {
		return
	}
	c.checkTaskDuration(ctx, agent)
}

// checkStatus polls /check_runner, the Go equivalent of control.py's
// check_status. On any unreachable response the agent is marked LOST;
// on a reachable 200 response a reported IDLE, RUNNING or NO_RUNNER that
// differs from the stored state is adopted (which also clears LOST, the
// "any reachable response clears LOST" behavior the original relies on).
// Any other reported value leaves the stored state unchanged.
func (c *Controller) checkStatus(ctx context.Context, agent *models.Agent) {
	now := time.Now().Unix()
	resp, statusCode, err := c.sendRequest(ctx, agent.AgentURL+"/check_runner", nil)

	if err != nil {
		c.log.Warnf("CONTROLLER", "unable to contact %s: %v", agent.AgentURL, err)
		_ = c.store.Agents().UpdateState(ctx, agent.ID, models.AgentLost)
		_ = c.store.Agents().TouchLastContact(ctx, agent.ID, now)
		return
	}

	if statusCode != http.StatusOK {
		c.log.Errorf("CONTROLLER", "error from check status, agent=%s code=%d", agent.ID, statusCode)
		_ = c.store.Agents().TouchLastContact(ctx, agent.ID, now)
		return
	}

	reported, _ := resp["status"].(string)
	reportedState := models.AgentState(reported)

	switch reportedState {
	case models.AgentIdle, models.AgentRunning, models.AgentNoRunner:
		if agent.AgentState != reportedState {
			c.log.Infof("CONTROLLER", "agent %s state %s -> %s", agent.ID, agent.AgentState, reportedState)
			_ = c.store.Agents().UpdateState(ctx, agent.ID, reportedState)
			agent.AgentState = reportedState

			if reportedState == models.AgentIdle {
				c.checkForFailedTask(ctx, agent)
				c.assignTask(ctx, agent)
			}
		}
	}

	_ = c.store.Agents().TouchLastContact(ctx, agent.ID, now)
}

// checkTaskDuration kills a task that has run longer than MaxTaskDuration,
// mirroring check_task_duration.
func (c *Controller) checkTaskDuration(ctx context.Context, agent *models.Agent) {
	if agent.AssignedTaskID == nil {
		return
	}

	task, err := c.store.Tasks().Get(ctx, *agent.AssignedTaskID)
	if err != nil || task == nil || task.StartTime == 0 {
		return
	}

	if task.IsStale(time.Now(), c.cfg.MaxTaskDuration) {
		c.log.Infof("CONTROLLER", "task %s on agent %s taking too long", task.ID, agent.ID)
		c.terminateTask(ctx, agent)
	}
}

// checkForFailedTask reclaims a task whose agent went idle without ever
// reporting a result — the failed-task sweep, mirroring
// check_for_failed_task exactly: increment fail_num, requeue or exhaust,
// clear both bindings.
func (c *Controller) checkForFailedTask(ctx context.Context, agent *models.Agent) {
	if agent.AssignedTaskID == nil {
		return
	}

	task, err := c.store.Tasks().Get(ctx, *agent.AssignedTaskID)
	if err != nil || task == nil {
		return
	}
	if task.TaskState != models.TaskAssigned {
		return
	}

	c.log.Infof("CONTROLLER", "task %s was assigned to agent %s but no results were returned", task.ID, agent.ID)

	if err := c.store.Tasks().Requeue(ctx, task.ID, c.cfg.MaxTaskRetries); err != nil {
		c.log.Errorf("CONTROLLER", "requeue task %s: %v", task.ID, err)
		return
	}
	if err := c.store.Agents().ClearAssignedTask(ctx, agent.ID); err != nil {
		c.log.Errorf("CONTROLLER", "clear assigned task on agent %s: %v", agent.ID, err)
	}
	if c.metrics != nil {
		c.metrics.FailedTaskSweep.Inc()
	}
}

// assignTask hands the next queued task (fewest failures first, oldest
// first to break ties) to an idle agent, mirroring assign_task. The
// process-wide assign lock guards only the claim itself: fetch next-queued
// task and flip it to ASSIGNED. The lock is released before the outbound
// /start_run call so one agent's in-flight dispatch never stalls every
// other supervisor's assignment; it is re-acquired only to roll the claim
// back if /start_run fails.
func (c *Controller) assignTask(ctx context.Context, agent *models.Agent) {
	if !agent.IsIdle() {
		return
	}

	c.assignMu.Lock()
	task, err := c.store.Tasks().NextQueued(ctx)
	if err != nil {
		c.assignMu.Unlock()
		c.log.Errorf("CONTROLLER", "next queued task: %v", err)
		return
	}
	if task == nil {
		c.assignMu.Unlock()
		return
	}

	if err := c.store.Tasks().Assign(ctx, task.ID, agent.ID, time.Now().Unix()); err != nil {
		c.assignMu.Unlock()
		c.log.Errorf("CONTROLLER", "assign task %s to agent %s: %v", task.ID, agent.ID, err)
		return
	}
	c.assignMu.Unlock()

	c.log.Infof("CONTROLLER", "assigning %s to agent %s", task.ID, agent.ID)

	payload := map[string]interface{}{
		"id":            task.ID,
		"url":           task.URL,
		"json_metadata": task.JSONMetadata,
	}
	_, statusCode, err := c.sendRequest(ctx, agent.AgentURL+"/start_run", payload)

	now := time.Now().Unix()
	_ = c.store.Agents().TouchLastContact(ctx, agent.ID, now)

	if err != nil || statusCode != http.StatusOK {
		c.log.Errorf("CONTROLLER", "error assigning task %s to agent %s: code=%d err=%v", task.ID, agent.ID, statusCode, err)
		_ = c.store.Agents().UpdateState(ctx, agent.ID, models.AgentLost)
		// The agent never actually started it: undo the claim without
		// touching fail_num, unlike the failed-task sweep's Requeue. The
		// claim itself was made under the lock, so rolling it back is
		// re-acquired the same way.
		c.assignMu.Lock()
		_ = c.store.Tasks().Unassign(ctx, task.ID)
		c.assignMu.Unlock()
		return
	}

	if err := c.store.Agents().AssignTask(ctx, agent.ID, task.ID); err != nil {
		c.log.Errorf("CONTROLLER", "record assignment of %s to agent %s: %v", task.ID, agent.ID, err)
	}
}

// terminateTask POSTs /kill_run, mirroring terminate_task.
func (c *Controller) terminateTask(ctx context.Context, agent *models.Agent) {
	resp, _, err := c.sendRequest(ctx, agent.AgentURL+"/kill_run", nil)
	if err != nil {
		c.log.Warnf("CONTROLLER", "unable to terminate task on agent %s: %v", agent.ID, err)
		return
	}
	if errMsg, ok := resp["error"]; ok {
		c.log.Errorf("CONTROLLER", "kill_run error on agent %s: %v", agent.ID, errMsg)
	}
}

// sendRequest POSTs json and returns the decoded body plus status code, or
// a non-nil error if the agent was unreachable within RequestTimeout —
// the Go equivalent of _send_request, which swallows connection and
// timeout errors into a (nil, nil) result; here they become a returned
// error instead so callers can log them uniformly.
func (c *Controller) sendRequest(ctx context.Context, url string, payload interface{}) (map[string]interface{}, int, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && err != io.EOF {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}

	return decoded, resp.StatusCode, nil
}
