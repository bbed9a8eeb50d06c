package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSONB custom type for PostgreSQL JSONB
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// String returns the string value stored under key, or ""
func (j JSONB) String(key string) string {
	if v, ok := j[key].(string); ok {
		return v
	}
	return ""
}

// SourceFile holds file-level defaults for an uploaded quantity file
type SourceFile struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	FileName   string    `gorm:"type:varchar(500);not null;uniqueIndex:idx_source_files_name" json:"fileName"`
	Defaults   JSONB     `gorm:"type:jsonb" json:"defaults"`
	UploadedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"uploadedAt"`
	UpdatedAt  time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name
func (SourceFile) TableName() string {
	return "quantity_source_files"
}

// RunStatus is the outcome of a sync run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusPartial   RunStatus = "PARTIAL"
	RunStatusFailed    RunStatus = "FAILED"
)

// SyncRun records one execution of the sync pipeline
type SyncRun struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID       string     `gorm:"type:varchar(255);not null;index:idx_sync_runs_store" json:"storeId"`
	FileName      string     `gorm:"type:varchar(500);not null" json:"fileName"`
	Mode          SyncMode   `gorm:"type:varchar(50);not null" json:"mode"`
	Status        RunStatus  `gorm:"type:varchar(50);not null;default:'RUNNING'" json:"status"`
	DryRun        bool       `gorm:"default:false" json:"dryRun"`
	TotalRecords  int        `json:"totalRecords"`
	Applied       int        `json:"applied"`
	Missing       int        `json:"missing"`
	FailedBatches int        `json:"failedBatches"`
	ErrorMessage  string     `gorm:"type:text" json:"errorMessage,omitempty"`
	ChangeLog     string     `gorm:"type:varchar(1000)" json:"changeLog,omitempty"`
	Report        JSONB      `gorm:"type:jsonb" json:"report,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// TableName specifies the table name
func (SyncRun) TableName() string {
	return "quantity_sync_runs"
}
