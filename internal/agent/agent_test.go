package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pymada-go/pymada/internal/config"
	"github.com/pymada-go/pymada/internal/logging"
	"github.com/pymada-go/pymada/pkg/models"
)

func bareAgent() *Agent {
	return &Agent{cfg: config.AgentConfig{}, log: logging.New()}
}

func TestAgentStatusIsNoRunnerBeforeRunnerInstalled(t *testing.T) {
	a := bareAgent()
	assert.Equal(t, models.AgentNoRunner, a.Status())
}

func TestAgentStatusTracksRunnerProcessLifecycle(t *testing.T) {
	a := bareAgent()

	rp, err := NewRunnerProcess(t.TempDir(), shRunner("sleep 1\n"))
	require.NoError(t, err)
	a.process = rp

	assert.Equal(t, models.AgentIdle, a.Status())

	require.NoError(t, rp.Start())
	assert.Equal(t, models.AgentRunning, a.Status())

	require.NoError(t, rp.Kill())
	assert.Eventually(t, func() bool {
		return a.Status() == models.AgentIdle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAgentStartRunRequiresInstalledRunner(t *testing.T) {
	a := bareAgent()

	err := a.StartRun(&models.UrlTask{URL: "http://x"})
	assert.Error(t, err)
}

func TestAgentStartRunIsIdempotentWhileRunning(t *testing.T) {
	a := bareAgent()

	rp, err := NewRunnerProcess(t.TempDir(), shRunner("sleep 1\n"))
	require.NoError(t, err)
	a.process = rp

	task := &models.UrlTask{URL: "http://x"}
	require.NoError(t, a.StartRun(task))
	assert.True(t, rp.IsRunning())

	require.NoError(t, a.StartRun(task), "a redundant /start_run while the runner is live must be a no-op, not an error")
	assert.True(t, rp.IsRunning())

	require.NoError(t, rp.Kill())
}

func TestAgentGetTaskReflectsStartRun(t *testing.T) {
	a := bareAgent()

	rp, err := NewRunnerProcess(t.TempDir(), shRunner("exit 0\n"))
	require.NoError(t, err)
	a.process = rp

	task := &models.UrlTask{URL: "http://x"}
	require.NoError(t, a.StartRun(task))
	assert.Equal(t, task, a.GetTask())
}

func TestAgentSaveTaskResultsRequiresActiveTask(t *testing.T) {
	a := bareAgent()
	a.master = newMasterClient("http://unused", "")

	err := a.SaveTaskResults(context.Background(), "result")
	assert.Error(t, err, "saving results with no active task is an error")
}
