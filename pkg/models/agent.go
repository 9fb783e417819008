package models

import (
	"time"

	"github.com/google/uuid"
)

// AgentState mirrors the states a runner process reports through
// /check_runner, plus LOST for an agent the controller can no longer reach.
type AgentState string

const (
	AgentIdle     AgentState = "IDLE"
	AgentRunning  AgentState = "RUNNING"
	AgentAssigned AgentState = "ASSIGNED"
	AgentNoRunner AgentState = "NO_RUNNER"
	AgentLost     AgentState = "LOST"
)

// Agent represents a registered worker process capable of running one
// runner script at a time.
type Agent struct {
	ID                  uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	Hostname            string     `json:"hostname" gorm:"type:text;index:idx_agent_identity,unique"`
	AgentURL            string     `json:"agent_url" gorm:"type:varchar(300);index:idx_agent_identity,unique"`
	AgentState          AgentState `json:"agent_state" gorm:"type:varchar(20);index;default:'NO_RUNNER'"`
	LastContactAttempt  int64      `json:"last_contact_attempt"`
	AssignedTaskID      *uuid.UUID `json:"assigned_task" gorm:"type:uuid"`
	AssignedRunnerID    *uuid.UUID `json:"assigned_runner" gorm:"type:uuid"`
	CreatedAt           time.Time  `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Agent) TableName() string {
	return "agents"
}

// IsIdle reports whether the agent can be handed a new task.
func (a *Agent) IsIdle() bool {
	return a.AgentState == AgentIdle
}

func (a *Agent) String() string {
	return "Agent{id:" + a.ID.String() + ", host:" + a.Hostname + ", state:" + string(a.AgentState) + "}"
}
