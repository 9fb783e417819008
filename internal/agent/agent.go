// Package agent implements the worker process: it registers with the
// master, downloads its assigned runner script, supervises that script as
// a child process, and relays task assignment/results/errors between the
// master and the runner — the Go port of agent_server.py.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pymada-go/pymada/internal/config"
	"github.com/pymada-go/pymada/internal/logging"
	"github.com/pymada-go/pymada/pkg/models"
)

// Agent is the worker process's in-memory state: its registration with
// the master, its current runner, and whatever task it's running.
type Agent struct {
	cfg     config.AgentConfig
	master  *masterClient
	log     *logging.Logger
	workDir string

	mu       sync.Mutex
	agentID  uuid.UUID
	runner   *models.Runner
	runnerID uuid.UUID
	process  *RunnerProcess
	task     *models.UrlTask
}

// New builds an Agent. autoregister, matching the original's constructor
// flag, triggers registration and runner fetch immediately.
func New(cfg config.AgentConfig, log *logging.Logger, autoregister bool) (*Agent, error) {
	if log == nil {
		log = logging.New()
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	a := &Agent{
		cfg:     cfg,
		master:  newMasterClient(cfg.MasterURL, cfg.TokenAuth),
		log:     log,
		workDir: fmt.Sprintf("/tmp/pymada-agent-%s", cfg.RunnerNum),
	}

	if autoregister {
		agentURL := fmt.Sprintf("http://%s:%s", cfg.AgentAddr, cfg.AgentPort)
		ctx := context.Background()
		registered, err := a.master.RegisterAgent(ctx, hostname, agentURL)
		if err != nil {
			return nil, fmt.Errorf("register with master: %w", err)
		}
		a.agentID = registered.ID
		a.log.Infof("AGENT", "registered as %s", a.agentID)

		if err := a.fetchRunner(ctx); err != nil {
			a.log.Warnf("AGENT", "fetch runner: %v", err)
		}
	}

	return a, nil
}

func (a *Agent) fetchRunner(ctx context.Context) error {
	r, err := a.master.GetRunner(ctx, a.cfg.RunnerNum)
	if err != nil {
		return fmt.Errorf("get runner: %w", err)
	}
	if r == nil {
		return nil
	}

	proc, err := NewRunnerProcess(a.workDir, r)
	if err != nil {
		return fmt.Errorf("prepare runner process: %w", err)
	}

	a.mu.Lock()
	a.runner = r
	a.runnerID = r.ID
	a.process = proc
	a.mu.Unlock()

	a.log.Infof("AGENT", "runner %s saved (%s)", r.ID, r.FileName)
	return nil
}

// Status is what /check_runner reports: NO_RUNNER until a runner exists
// and any dependency install has finished, otherwise the process's
// IDLE/RUNNING state, matching check_runner's exact precedence.
func (a *Agent) Status() models.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.process == nil || a.process.DependenciesInstalling() {
		return models.AgentNoRunner
	}
	if a.process.IsRunning() {
		return models.AgentRunning
	}
	return models.AgentIdle
}

// StartRun assigns a task and launches the runner, the handler behind
// /start_run.
func (a *Agent) StartRun(task *models.UrlTask) error {
	a.mu.Lock()
	if a.process == nil {
		a.mu.Unlock()
		return fmt.Errorf("no runner installed")
	}
	a.task = task
	proc := a.process
	a.mu.Unlock()

	return proc.Start()
}

// KillRun kills the active runner process, the handler behind /kill_run.
func (a *Agent) KillRun() error {
	a.mu.Lock()
	proc := a.process
	a.mu.Unlock()

	if proc == nil {
		return fmt.Errorf("no runner installed")
	}
	return proc.Kill()
}

// GetTask returns the currently assigned task, for the runner's
// /get_task call into its local agent.
func (a *Agent) GetTask() *models.UrlTask {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.task
}

// SaveTaskResults stringifies non-string results the way
// save_task_results does, relays them to the master, and clears the
// local task assignment.
func (a *Agent) SaveTaskResults(ctx context.Context, result interface{}) error {
	a.mu.Lock()
	task := a.task
	a.mu.Unlock()
	if task == nil {
		return fmt.Errorf("no active task")
	}

	var resultStr string
	if s, ok := result.(string); ok {
		resultStr = s
	} else {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal task result: %w", err)
		}
		resultStr = string(b)
	}

	if err := a.master.SaveTaskResult(ctx, task.ID.String(), &resultStr); err != nil {
		return fmt.Errorf("save task result: %w", err)
	}

	a.mu.Lock()
	a.task = nil
	a.mu.Unlock()
	return nil
}

// AssignRunner re-fetches this agent's runner assignment from the
// master, the handler behind /assign_runner.
func (a *Agent) AssignRunner(ctx context.Context) error {
	return a.fetchRunner(ctx)
}

// AddURL relays a runner-discovered URL to the master as a new task.
func (a *Agent) AddURL(ctx context.Context, task *models.UrlTask) error {
	return a.master.AddURL(ctx, task)
}

// LogError relays a runner-reported error to the master, tagging it with
// this agent's and runner's IDs.
func (a *Agent) LogError(ctx context.Context, message string) error {
	a.mu.Lock()
	agentID := a.agentID
	runnerID := a.runnerID
	a.mu.Unlock()

	e := &models.ErrorLog{
		Message:          message,
		ReportingAgentID: &agentID,
	}
	if runnerID != uuid.Nil {
		e.RunnerID = &runnerID
	}
	return a.master.LogError(ctx, e)
}

// SaveScreenshot relays a runner-uploaded screenshot to the master, the
// handler behind /save_screenshot.
func (a *Agent) SaveScreenshot(ctx context.Context, taskID, fileName string, image io.Reader) error {
	return a.master.SaveScreenshot(ctx, taskID, fileName, image)
}
