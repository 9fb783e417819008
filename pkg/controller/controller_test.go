package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pymada-go/pymada/pkg/models"
	"github.com/pymada-go/pymada/pkg/store"
)

// fakeAgentServer plays the role of an agent's /check_runner, /start_run
// and /kill_run endpoints under test control.
type fakeAgentServer struct {
	mu           sync.Mutex
	status       string
	startCount   int32
	killCount    int32
	startAccepts bool
	startDelay   time.Duration
	server       *httptest.Server
}

func newFakeAgentServer(initialStatus string) *fakeAgentServer {
	f := &fakeAgentServer{status: initialStatus, startAccepts: true}
	mux := http.NewServeMux()
	mux.HandleFunc("/check_runner", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.status
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
	mux.HandleFunc("/start_run", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.startCount, 1)
		f.mu.Lock()
		accepts := f.startAccepts
		delay := f.startDelay
		if accepts {
			f.status = "RUNNING"
		}
		f.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		if !accepts {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/kill_run", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.killCount, 1)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	f.server = httptest.NewServer(mux)
	return f
}

func (f *fakeAgentServer) setStartDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startDelay = d
}

func (f *fakeAgentServer) setStatus(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

func (f *fakeAgentServer) close() { f.server.Close() }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RegistrationInterval = 20 * time.Millisecond
	cfg.SupervisionInterval = 20 * time.Millisecond
	cfg.RequestTimeout = 500 * time.Millisecond
	return cfg
}

// S1: a single idle agent is handed the only queued task.
func TestControllerAssignsQueuedTaskToIdleAgent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemStore()
	fake := newFakeAgentServer("IDLE")
	defer fake.close()

	agent := &models.Agent{Hostname: "h1", AgentURL: fake.server.URL, AgentState: models.AgentNoRunner}
	require.NoError(t, st.Agents().Create(ctx, agent))

	task := &models.UrlTask{URL: "http://example.com"}
	require.NoError(t, st.Tasks().Create(ctx, task))

	c := New(st, testConfig(), nil, nil)
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	assert.Eventually(t, func() bool {
		got, _ := st.Tasks().Get(ctx, task.ID)
		return got != nil && got.TaskState == models.TaskAssigned
	}, 2*time.Second, 10*time.Millisecond)

	got, err := st.Agents().Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, &task.ID, got.AssignedTaskID)
}

// S3-equivalent: an agent that silently loses its assignment (goes IDLE
// without completing) has the task reclaimed and requeued.
func TestControllerSweepsFailedTaskBackToQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemStore()
	fake := newFakeAgentServer("IDLE")
	defer fake.close()

	agent := &models.Agent{Hostname: "h1", AgentURL: fake.server.URL, AgentState: models.AgentAssigned}
	require.NoError(t, st.Agents().Create(ctx, agent))

	task := &models.UrlTask{URL: "http://example.com", TaskState: models.TaskAssigned, StartTime: time.Now().Unix()}
	require.NoError(t, st.Tasks().Create(ctx, task))
	require.NoError(t, st.Agents().AssignTask(ctx, agent.ID, task.ID))

	cfg := testConfig()
	c := New(st, cfg, nil, nil)
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	assert.Eventually(t, func() bool {
		got, _ := st.Tasks().Get(ctx, task.ID)
		// the sweep requeues it, and the same idle agent will likely
		// re-claim it immediately — either QUEUED or re-ASSIGNED with
		// fail_num incremented proves the sweep ran.
		return got != nil && got.FailNum == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// An agent that never responds is marked LOST.
func TestControllerMarksUnreachableAgentLost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemStore()
	unreachable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// never respond within the client timeout window: simulate by
		// closing the connection immediately via hijack-less 444-ish
		// behavior — simplest is to just not write anything and let the
		// client's context deadline fire, but httptest always responds,
		// so instead point the agent at a closed server below.
	}))
	unreachable.Close() // closed immediately: every request will fail to connect

	agent := &models.Agent{Hostname: "h1", AgentURL: unreachable.URL, AgentState: models.AgentIdle}
	require.NoError(t, st.Agents().Create(ctx, agent))

	c := New(st, testConfig(), nil, nil)
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	assert.Eventually(t, func() bool {
		got, _ := st.Agents().Get(ctx, agent.ID)
		return got != nil && got.AgentState == models.AgentLost
	}, 2*time.Second, 10*time.Millisecond)
}

// One agent's slow /start_run must not stall another agent's assignment:
// the assign lock only guards the claim, not the dispatch call.
func TestControllerSlowStartRunDoesNotBlockOtherAgentsAssignment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemStore()

	slow := newFakeAgentServer("IDLE")
	slow.setStartDelay(1 * time.Second)
	defer slow.close()

	fast := newFakeAgentServer("IDLE")
	defer fast.close()

	slowAgent := &models.Agent{Hostname: "slow", AgentURL: slow.server.URL, AgentState: models.AgentNoRunner}
	require.NoError(t, st.Agents().Create(ctx, slowAgent))
	fastAgent := &models.Agent{Hostname: "fast", AgentURL: fast.server.URL, AgentState: models.AgentNoRunner}
	require.NoError(t, st.Agents().Create(ctx, fastAgent))

	slowTask := &models.UrlTask{URL: "http://slow.example.com"}
	require.NoError(t, st.Tasks().Create(ctx, slowTask))
	fastTask := &models.UrlTask{URL: "http://fast.example.com"}
	require.NoError(t, st.Tasks().Create(ctx, fastTask))

	cfg := testConfig()
	c := New(st, cfg, nil, nil)
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	// The fast agent's task must be ASSIGNED well before the slow agent's
	// one-second /start_run call returns; if the assign lock were held
	// across that call, this would block for the full second instead.
	assert.Eventually(t, func() bool {
		got, _ := st.Agents().Get(ctx, fastAgent.ID)
		return got != nil && got.AssignedTaskID != nil
	}, 500*time.Millisecond, 10*time.Millisecond, "the fast agent's assignment must not be stalled by the slow agent's in-flight /start_run")
}

// A stale assignment is terminated once it exceeds MaxTaskDuration.
func TestControllerKillsTaskPastDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemStore()
	fake := newFakeAgentServer("RUNNING")
	defer fake.close()

	agent := &models.Agent{Hostname: "h1", AgentURL: fake.server.URL, AgentState: models.AgentRunning}
	require.NoError(t, st.Agents().Create(ctx, agent))

	task := &models.UrlTask{
		URL:       "http://example.com",
		TaskState: models.TaskAssigned,
		StartTime: time.Now().Add(-1 * time.Hour).Unix(),
	}
	require.NoError(t, st.Tasks().Create(ctx, task))
	require.NoError(t, st.Agents().AssignTask(ctx, agent.ID, task.ID))

	cfg := testConfig()
	cfg.MaxTaskDuration = 1 * time.Second
	c := New(st, cfg, nil, nil)
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fake.killCount) > 0
	}, 2*time.Second, 10*time.Millisecond)
}
