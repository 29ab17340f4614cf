package database

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

func (d *Database) CreateFilter(filter *models.Filter) error {
	if filter.RunStatus == "" {
		filter.RunStatus = models.RunStatusIdle
	}
	return d.db.Create(filter).Error
}

func (d *Database) GetFilter(id uint) (*models.Filter, error) {
	var filter models.Filter
	if err := d.db.First(&filter, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &filter, nil
}

func (d *Database) ListFilters(userID uint) ([]models.Filter, error) {
	var filters []models.Filter
	err := d.db.Where("user_id = ?", userID).Order("id").Find(&filters).Error
	return filters, err
}

func (d *Database) SaveFilter(filter *models.Filter) error {
	return d.db.Save(filter).Error
}

// DeleteFilter removes a filter with its membership rows; listings stay,
// other filters may still reference them.
func (d *Database) DeleteFilter(id uint) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("filter_id = ?", id).Delete(&models.FilterListing{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Filter{}, id).Error
	})
}

func (d *Database) CountFilters(userID uint) (int64, error) {
	var count int64
	err := d.db.Model(&models.Filter{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// DueFilters returns active auto-scan filters whose next scan time has
// passed and which are not already queued or running.
func (d *Database) DueFilters(now time.Time) ([]models.Filter, error) {
	var filters []models.Filter
	err := d.db.
		Where("auto_scan_enabled = ? AND is_active = ?", true, true).
		Where("run_status = ?", models.RunStatusIdle).
		Where("next_scan_at IS NULL OR next_scan_at <= ?", now).
		Order("next_scan_at").
		Find(&filters).Error
	return filters, err
}

func (d *Database) SetFilterRunStatus(id uint, status models.RunStatus) error {
	return d.db.Model(&models.Filter{}).Where("id = ?", id).
		Update("run_status", status).Error
}

func (d *Database) SetNextScanAt(id uint, next time.Time) error {
	return d.db.Model(&models.Filter{}).Where("id = ?", id).
		Update("next_scan_at", next).Error
}

// CompleteFilterScan updates timing and counters after a successful scan in
// a single write: last/next scan times, total scans, new listings found, and
// the run status back to idle.
func (d *Database) CompleteFilterScan(id uint, last, next time.Time, newFound int) error {
	return d.db.Model(&models.Filter{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_scan_at":       last,
			"next_scan_at":       next,
			"total_scans":        gorm.Expr("total_scans + 1"),
			"new_listings_found": gorm.Expr("new_listings_found + ?", newFound),
			"run_status":         models.RunStatusIdle,
		}).Error
}

// FailFilterScan surfaces a degraded status on the filter and pushes the
// next attempt out so failures cannot busy-loop.
func (d *Database) FailFilterScan(id uint, next time.Time) error {
	return d.db.Model(&models.Filter{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"next_scan_at": next,
			"run_status":   models.RunStatusFailed,
		}).Error
}
