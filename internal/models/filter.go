package models

import "time"

// RunStatus is the scheduler-facing state of a filter.
type RunStatus string

const (
	RunStatusIdle    RunStatus = "idle"
	RunStatusQueued  RunStatus = "queued"
	RunStatusRunning RunStatus = "running"
	RunStatusFailed  RunStatus = "failed"
)

// Criteria holds the saved search constraints of a filter. It is stored as a
// JSON column; zero fields are omitted from the outbound query.
type Criteria struct {
	Brand      string `json:"brand,omitempty"`
	Model      string `json:"model,omitempty"`
	MinPrice   *int   `json:"min_price,omitempty"`
	MaxPrice   *int   `json:"max_price,omitempty"`
	MinYear    *int   `json:"min_year,omitempty"`
	MaxYear    *int   `json:"max_year,omitempty"`
	MaxMileage *int   `json:"max_mileage,omitempty"`
	City       string `json:"city,omitempty"`
	CategoryID *int   `json:"category_id,omitempty"`
	// Sort order understood by the source: 1=date, 2=price, 3=year
	Sort int `json:"sort,omitempty"`
}

// Filter is a saved search with optional automatic re-scanning.
type Filter struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	UserID              uint      `gorm:"index;not null" json:"user_id"`
	Name                string    `gorm:"not null" json:"name"`
	Criteria            Criteria  `gorm:"serializer:json" json:"criteria"`
	IsActive            bool      `gorm:"default:true" json:"is_active"`
	AutoScanEnabled     bool      `gorm:"default:false;index" json:"auto_scan_enabled"`
	ScanIntervalMinutes int       `gorm:"default:30" json:"scan_interval_minutes"`
	RunStatus           RunStatus `gorm:"default:idle" json:"run_status"`

	LastScanAt *time.Time `json:"last_scan_at"`
	NextScanAt *time.Time `gorm:"index" json:"next_scan_at"`

	TotalScans       int `gorm:"default:0" json:"total_scans"`
	NewListingsFound int `gorm:"default:0" json:"new_listings_found"`

	CreatedAt time.Time `json:"created_at"`
}

// Interval returns the scan interval as a duration.
func (f *Filter) Interval() time.Duration {
	return time.Duration(f.ScanIntervalMinutes) * time.Minute
}
