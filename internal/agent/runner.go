package agent

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pymada-go/pymada/pkg/models"
)

// RunnerProcess supervises one runner script's on-disk files and its
// child-process lifecycle. Adapted from the teacher's one-shot
// exec.CommandContext invocation (internal/orchestration/agents/claude.go)
// into a long-lived child: the process is started once, its liveness is
// polled through a non-blocking Wait in a background goroutine, and the
// exit code is latched for /check_runner to report later, mirroring the
// original Runner.get_status()'s process.poll().
type RunnerProcess struct {
	workDir    string
	executable string
	scriptPath string

	mu          sync.Mutex
	cmd         *exec.Cmd
	running     int32 // atomic bool
	lastRunCode *int
	depsRunning int32 // atomic bool: dependency install child still alive
}

// NewRunnerProcess writes the runner's script contents (and dependency
// manifest, if any) to workDir and returns a supervisor for it.
func NewRunnerProcess(workDir string, r *models.Runner) (*RunnerProcess, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create runner work dir: %w", err)
	}

	scriptPath := filepath.Join(workDir, r.FileName)
	if err := os.WriteFile(scriptPath, []byte(r.Contents), 0o644); err != nil {
		return nil, fmt.Errorf("write runner script: %w", err)
	}

	rp := &RunnerProcess{
		workDir:    workDir,
		executable: resolveExecutable(r),
		scriptPath: scriptPath,
	}

	if r.DependencyFile != nil {
		cfg, ok := runnerConfigs[r.FileType]
		if ok && cfg.deps != nil {
			manifestPath := filepath.Join(workDir, cfg.deps.fileName)
			if err := os.WriteFile(manifestPath, []byte(*r.DependencyFile), 0o644); err != nil {
				return nil, fmt.Errorf("write dependency manifest: %w", err)
			}
			if err := rp.installDependencies(cfg.deps.command); err != nil {
				return nil, fmt.Errorf("install dependencies: %w", err)
			}
		}
	}

	return rp, nil
}

// installDependencies spawns the install command as its own child,
// mirroring install_dependencies's subprocess.Popen(shell=True). Unlike
// the runner script itself, this one is fire-and-forget: check_runner
// treats its liveness as NO_RUNNER until it exits.
func (rp *RunnerProcess) installDependencies(command string) error {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = rp.workDir
	if err := cmd.Start(); err != nil {
		return err
	}
	atomic.StoreInt32(&rp.depsRunning, 1)
	go func() {
		_ = cmd.Wait()
		atomic.StoreInt32(&rp.depsRunning, 0)
	}()
	return nil
}

// DependenciesInstalling reports whether the dependency-install child is
// still running.
func (rp *RunnerProcess) DependenciesInstalling() bool {
	return atomic.LoadInt32(&rp.depsRunning) == 1
}

// Start launches the runner script as a child process. A redundant call
// while one is already live is a no-op, mirroring Runner.run()'s silent
// early-return when self.process is not None.
func (rp *RunnerProcess) Start() error {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.cmd != nil && atomic.LoadInt32(&rp.running) == 1 {
		return nil
	}

	cmd := exec.Command(rp.executable, rp.scriptPath)
	cmd.Dir = rp.workDir
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start runner: %w", err)
	}

	rp.cmd = cmd
	rp.lastRunCode = nil
	atomic.StoreInt32(&rp.running, 1)

	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		rp.mu.Lock()
		rp.lastRunCode = &code
		rp.mu.Unlock()
		atomic.StoreInt32(&rp.running, 0)
	}()

	return nil
}

// Kill terminates the running child, if any.
func (rp *RunnerProcess) Kill() error {
	rp.mu.Lock()
	cmd := rp.cmd
	rp.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill runner: %w", err)
	}
	return nil
}

// IsRunning reports whether the child process has not yet exited.
func (rp *RunnerProcess) IsRunning() bool {
	return atomic.LoadInt32(&rp.running) == 1
}

// LastExitCode returns the most recent run's exit code, if the process
// has exited at least once.
func (rp *RunnerProcess) LastExitCode() *int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.lastRunCode
}
