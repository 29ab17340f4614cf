package models

import "time"

// Tier is a subscription level governing quotas.
type Tier string

const (
	TierFree  Tier = "free"
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
)

// TierLimits are the daily scan and filter-count budgets of a tier.
// MaxFilters of -1 means unlimited.
type TierLimits struct {
	DailySearchLimit int
	MaxFilters       int
}

var tierLimits = map[Tier]TierLimits{
	TierFree:  {DailySearchLimit: 50, MaxFilters: 5},
	TierBasic: {DailySearchLimit: 500, MaxFilters: 20},
	TierPro:   {DailySearchLimit: 2000, MaxFilters: -1},
}

// LimitsForTier returns the quota limits of a tier. Unknown tiers fall back
// to free.
func LimitsForTier(t Tier) TierLimits {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[TierFree]
}

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`

	SubscriptionTier Tier `gorm:"default:free;index" json:"subscription_tier"`

	DailySearchCount int `gorm:"default:0" json:"daily_search_count"`
	DailySearchLimit int `gorm:"default:50" json:"daily_search_limit"`
	MaxFilters       int `gorm:"default:5" json:"max_filters"`

	// Date (local) of the last daily counter reset
	LastResetDate time.Time `json:"last_reset_date"`

	TelegramEnabled bool   `gorm:"default:false" json:"telegram_enabled"`
	TelegramChatID  string `json:"telegram_chat_id"`
	PushEnabled     bool   `gorm:"default:true" json:"push_enabled"`
}

// Favorite pins a listing for a user and tracks its price since pinning.
type Favorite struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"uniqueIndex:idx_user_listing;not null" json:"user_id"`
	ListingID      uint       `gorm:"uniqueIndex:idx_user_listing;not null" json:"listing_id"`
	PriceWhenAdded float64    `json:"price_when_added"`
	LastCheckedAt  *time.Time `json:"last_checked_at"`
	CreatedAt      time.Time  `json:"created_at"`

	Listing *Listing `gorm:"foreignKey:ListingID" json:"listing,omitempty"`
}

// Notification is one entry of the in-app feed channel.
type Notification struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	FilterID  *uint      `json:"filter_id,omitempty"`
	ListingID *uint      `json:"listing_id,omitempty"`
	Title     string     `gorm:"not null" json:"title"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}
