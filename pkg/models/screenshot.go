package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Screenshot is an image blob a runner attached to a task.
type Screenshot struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	TaskID    uuid.UUID `json:"task" gorm:"type:uuid;index"`
	Timestamp time.Time `json:"timestamp" gorm:"autoCreateTime"`
	ImageData []byte    `json:"-" gorm:"type:blob"`
	FileName  string    `json:"file_name" gorm:"type:varchar(255)"`
}

// TableName specifies the table name for GORM.
func (Screenshot) TableName() string {
	return "screenshots"
}

// ContentType derives the MIME type from FileName's extension, mirroring
// the master's original extension-to-content-type lookup.
func (s *Screenshot) ContentType() string {
	ext := strings.ToLower(s.FileName)
	if i := strings.LastIndex(ext, "."); i != -1 {
		ext = ext[i+1:]
	}
	switch ext {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
