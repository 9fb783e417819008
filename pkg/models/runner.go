package models

import "github.com/google/uuid"

// RunnerFileType names the supported runner script families. These map
// 1:1 to an interpreter and an optional dependency manifest on the agent
// side; see internal/agent's runnerConfigs table.
type RunnerFileType string

const (
	RunnerNodePuppeteer             RunnerFileType = "node_puppeteer"
	RunnerPythonSeleniumFirefox     RunnerFileType = "python_selenium_firefox"
	RunnerPythonSeleniumChrome      RunnerFileType = "python_selenium_chrome"
	RunnerPythonAgent               RunnerFileType = "python_agent"
	RunnerPython                    RunnerFileType = "python"
)

// Runner is the user-supplied script content an agent downloads, installs
// dependencies for, and executes as a child process.
type Runner struct {
	ID                uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	Contents          string         `json:"contents" gorm:"type:text;not null"`
	FileName          string         `json:"file_name" gorm:"type:varchar(200);not null"`
	FileType          RunnerFileType `json:"file_type" gorm:"type:varchar(200);not null"`
	CustomExecutable  *string        `json:"custom_executable" gorm:"type:varchar(200)"`
	DependencyFile    *string        `json:"dependency_file" gorm:"type:text"`
}

// TableName specifies the table name for GORM.
func (Runner) TableName() string {
	return "runners"
}
