package models

import "time"

// ScanStatus is the terminal state of one scan execution.
type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusSucceeded ScanStatus = "succeeded"
	ScanStatusFailed    ScanStatus = "failed"
)

// ScanJob records one execution of a filter's criteria against the source.
type ScanJob struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	FilterID uint `gorm:"index;not null" json:"filter_id"`
	Manual   bool `gorm:"default:false" json:"manual"`

	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`

	Status ScanStatus `gorm:"default:running;index" json:"status"`
	Error  string     `json:"error,omitempty"`

	FoundCount     int `gorm:"default:0" json:"found_count"`
	NewCount       int `gorm:"default:0" json:"new_count"`
	ChangedCount   int `gorm:"default:0" json:"changed_count"`
	UnchangedCount int `gorm:"default:0" json:"unchanged_count"`
	DroppedCount   int `gorm:"default:0" json:"dropped_count"`
}
