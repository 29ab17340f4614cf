package models

import (
	"encoding/json"
	"time"
)

// PriceEntry is one point of a listing's price history.
type PriceEntry struct {
	Price      float64   `json:"price"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Listing is the canonical record of one marketplace ad. Identity is the
// source URL; internal ids from the raw feed are not stable across scans.
type Listing struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SourceURL string `gorm:"uniqueIndex;not null" json:"source_url"`

	Title        string  `gorm:"not null" json:"title"`
	Price        float64 `gorm:"index" json:"price"`
	Year         int     `gorm:"index" json:"year"`
	Brand        string  `gorm:"index" json:"brand"`
	Model        string  `gorm:"index" json:"model"`
	Mileage      int     `json:"mileage"`
	City         string  `gorm:"index" json:"city"`
	FuelType     string  `json:"fuel_type"`
	Transmission string  `json:"transmission"`

	Images []string `gorm:"serializer:json" json:"images"`

	// Categorized paint/part report plus the tramer amount, passed
	// through from the source untouched.
	DamageReport json.RawMessage `json:"damage_report,omitempty"`

	FirstSeenAt  time.Time    `gorm:"index" json:"first_seen_at"`
	LastSeenAt   time.Time    `gorm:"index" json:"last_seen_at"`
	PriceHistory []PriceEntry `gorm:"serializer:json" json:"price_history"`
}

// CurrentPrice returns the last price history entry, falling back to the
// Price column when the history is empty.
func (l *Listing) CurrentPrice() float64 {
	if n := len(l.PriceHistory); n > 0 {
		return l.PriceHistory[n-1].Price
	}
	return l.Price
}

// FilterListing tracks a listing's membership in one filter's result set.
// MissedScans counts consecutive scans that did not return the listing;
// crossing the staleness threshold flips Stale without touching the global
// listing row.
type FilterListing struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	FilterID      uint       `gorm:"uniqueIndex:idx_filter_listing;not null" json:"filter_id"`
	ListingID     uint       `gorm:"uniqueIndex:idx_filter_listing;not null" json:"listing_id"`
	MissedScans   int        `gorm:"default:0" json:"missed_scans"`
	Stale         bool       `gorm:"default:false;index" json:"stale"`
	LastMatchedAt *time.Time `json:"last_matched_at"`
}

// RawListing is a record as returned by the source connector, before
// normalization. Field names follow the arabam sandbox API payload.
type RawListing struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Price        float64         `json:"price"`
	ModelYear    int             `json:"modelYear"`
	Mileage      int             `json:"mileage"`
	Location     string          `json:"location"`
	Category     string          `json:"category"`
	Photo        string          `json:"photo"`
	Date         string          `json:"dateFormatted"`
	FuelType     string          `json:"fuelType"`
	Transmission string          `json:"transmission"`
	DamageInfo   json.RawMessage `json:"damageInfo,omitempty"`
}
