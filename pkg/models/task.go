package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskState is the lifecycle state of a UrlTask.
type TaskState string

const (
	TaskQueued   TaskState = "QUEUED"
	TaskAssigned TaskState = "ASSIGNED"
	TaskComplete TaskState = "COMPLETE"
)

// UrlTask represents one unit of work: a URL to process plus whatever
// metadata and result a runner attaches to it.
type UrlTask struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	URL             string     `json:"url" gorm:"type:text;not null"`
	JSONMetadata    *string    `json:"json_metadata" gorm:"type:text"`
	TaskResult      *string    `json:"task_result" gorm:"type:text"`
	TaskState       TaskState  `json:"task_state" gorm:"type:varchar(20);index;default:'QUEUED'"`
	AssignedAgentID *uuid.UUID `json:"assigned_agent" gorm:"type:uuid;index"`
	FailNum         int        `json:"fail_num" gorm:"default:0"`
	StartTime       int64      `json:"start_time" gorm:"default:0"`
	EndTime         *int64     `json:"end_time"`
	CreatedAt       time.Time  `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for GORM.
func (UrlTask) TableName() string {
	return "url_tasks"
}

// IsStale reports whether the task has been running longer than maxDuration
// without being completed.
func (t *UrlTask) IsStale(now time.Time, maxDuration time.Duration) bool {
	if t.TaskState != TaskAssigned || t.StartTime == 0 {
		return false
	}
	return now.Sub(time.Unix(t.StartTime, 0)) > maxDuration
}

// ExhaustedRetries reports whether fail_num has reached maxRetries.
func (t *UrlTask) ExhaustedRetries(maxRetries int) bool {
	return t.FailNum >= maxRetries
}

func (t *UrlTask) String() string {
	return "UrlTask{id:" + t.ID.String() + ", state:" + string(t.TaskState) + "}"
}
