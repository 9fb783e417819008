package agent

import "github.com/pymada-go/pymada/pkg/models"

// dependencyManager names the manifest file a runner type expects and the
// shell command used to install it, mirroring agent_server.py's
// runner_configs dependency_manager entries.
type dependencyManager struct {
	fileName string
	command  string
}

// runnerTypeConfig pairs an interpreter with an optional dependency
// manager, keyed by models.RunnerFileType.
type runnerTypeConfig struct {
	executable string
	deps       *dependencyManager
}

// runnerConfigs is the bit-exact Go port of agent_server.py's
// runner_configs table.
var runnerConfigs = map[models.RunnerFileType]runnerTypeConfig{
	models.RunnerPython: {
		executable: "python3",
		deps: &dependencyManager{
			fileName: "requirements.txt",
			command:  "python3 -m pip install -r requirements.txt",
		},
	},
	models.RunnerPythonSeleniumFirefox: {
		executable: "python3",
		deps: &dependencyManager{
			fileName: "requirements.txt",
			command:  "python3 -m pip install -r requirements.txt",
		},
	},
	models.RunnerPythonSeleniumChrome: {
		executable: "python3",
		deps: &dependencyManager{
			fileName: "requirements.txt",
			command:  "python3 -m pip install -r requirements.txt",
		},
	},
	models.RunnerPythonAgent: {
		executable: "python3",
		deps: &dependencyManager{
			fileName: "requirements.txt",
			command:  "python3 -m pip install -r requirements.txt",
		},
	},
	models.RunnerNodePuppeteer: {
		executable: "node",
		deps: &dependencyManager{
			fileName: "package.json",
			command:  "npm install",
		},
	},
}

// resolveExecutable returns the runner's custom executable if set,
// otherwise the runner type's default interpreter.
func resolveExecutable(r *models.Runner) string {
	if r.CustomExecutable != nil && *r.CustomExecutable != "" {
		return *r.CustomExecutable
	}
	if cfg, ok := runnerConfigs[r.FileType]; ok {
		return cfg.executable
	}
	return "python3"
}
