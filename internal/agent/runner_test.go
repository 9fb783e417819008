package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pymada-go/pymada/pkg/models"
)

func shRunner(contents string) *models.Runner {
	sh := "sh"
	return &models.Runner{
		Contents:         contents,
		FileName:         "run.sh",
		FileType:         models.RunnerPython,
		CustomExecutable: &sh,
	}
}

func TestRunnerProcessRunsAndLatchesExitCode(t *testing.T) {
	rp, err := NewRunnerProcess(t.TempDir(), shRunner("exit 3\n"))
	require.NoError(t, err)

	require.NoError(t, rp.Start())

	assert.Eventually(t, func() bool {
		return !rp.IsRunning()
	}, 2*time.Second, 10*time.Millisecond)

	code := rp.LastExitCode()
	require.NotNil(t, code)
	assert.Equal(t, 3, *code)
}

func TestRunnerProcessRedundantStartIsNoOp(t *testing.T) {
	rp, err := NewRunnerProcess(t.TempDir(), shRunner("sleep 1\n"))
	require.NoError(t, err)

	require.NoError(t, rp.Start())
	assert.True(t, rp.IsRunning())
	firstCmd := rp.cmd

	require.NoError(t, rp.Start(), "a redundant start while one is already live is a no-op, not an error")
	assert.True(t, rp.IsRunning())
	assert.Same(t, firstCmd, rp.cmd, "the redundant call must not replace the live child")

	require.NoError(t, rp.Kill())
}

func TestRunnerProcessKillStopsRunningChild(t *testing.T) {
	rp, err := NewRunnerProcess(t.TempDir(), shRunner("sleep 30\n"))
	require.NoError(t, err)

	require.NoError(t, rp.Start())
	require.True(t, rp.IsRunning())

	require.NoError(t, rp.Kill())

	assert.Eventually(t, func() bool {
		return !rp.IsRunning()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunnerProcessInstallDependenciesGatesReadiness(t *testing.T) {
	deps := ""
	sh := "sh"
	r := &models.Runner{
		Contents:         "exit 0\n",
		FileName:         "run.sh",
		FileType:         models.RunnerPython,
		CustomExecutable: &sh,
		DependencyFile:   &deps,
	}

	rp, err := NewRunnerProcess(t.TempDir(), r)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return !rp.DependenciesInstalling()
	}, 5*time.Second, 10*time.Millisecond, "the pip install child should exit quickly against an empty requirements file")
}
