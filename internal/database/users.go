package database

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

func (d *Database) CreateUser(user *models.User) error {
	limits := models.LimitsForTier(user.SubscriptionTier)
	user.DailySearchLimit = limits.DailySearchLimit
	user.MaxFilters = limits.MaxFilters
	if user.LastResetDate.IsZero() {
		user.LastResetDate = time.Now()
	}
	return d.db.Create(user).Error
}

func (d *Database) GetUser(id uint) (*models.User, error) {
	var user models.User
	if err := d.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ResetDailyCount zeroes a single user's daily search counter and stamps the
// reset day.
func (d *Database) ResetDailyCount(userID uint, day time.Time) error {
	return d.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"daily_search_count": 0,
			"last_reset_date":    day,
		}).Error
}

// ResetExpiredDailyCounts zeroes counters for every user whose last reset
// predates the given day. Run by the midnight maintenance job.
func (d *Database) ResetExpiredDailyCounts(day time.Time) (int64, error) {
	res := d.db.Model(&models.User{}).
		Where("last_reset_date < ?", day).
		Updates(map[string]interface{}{
			"daily_search_count": 0,
			"last_reset_date":    day,
		})
	return res.RowsAffected, res.Error
}

// IncrementSearchCount adds exactly one to the user's daily counter.
func (d *Database) IncrementSearchCount(userID uint) error {
	return d.db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("daily_search_count", gorm.Expr("daily_search_count + 1")).Error
}
