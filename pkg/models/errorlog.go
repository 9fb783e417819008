package models

import (
	"time"

	"github.com/google/uuid"
)

// ErrorLog records a problem reported by an agent or a runner.
type ErrorLog struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	Message          string     `json:"message" gorm:"type:text;not null"`
	ReportingAgentID *uuid.UUID `json:"reporting_agent" gorm:"type:uuid"`
	RunnerID         *uuid.UUID `json:"runner" gorm:"type:uuid"`
	Timestamp        time.Time  `json:"timestamp" gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for GORM.
func (ErrorLog) TableName() string {
	return "error_logs"
}
