package database

import (
	"time"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

func (d *Database) CreateScanJob(job *models.ScanJob) error {
	if job.Status == "" {
		job.Status = models.ScanStatusRunning
	}
	return d.db.Create(job).Error
}

func (d *Database) FinishScanJob(job *models.ScanJob, status models.ScanStatus, finishedAt time.Time) error {
	job.Status = status
	job.FinishedAt = &finishedAt
	return d.db.Model(&models.ScanJob{}).Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":          status,
			"finished_at":     finishedAt,
			"error":           job.Error,
			"found_count":     job.FoundCount,
			"new_count":       job.NewCount,
			"changed_count":   job.ChangedCount,
			"unchanged_count": job.UnchangedCount,
			"dropped_count":   job.DroppedCount,
		}).Error
}

func (d *Database) ListScanJobs(filterID uint, limit int) ([]models.ScanJob, error) {
	var jobs []models.ScanJob
	q := d.db.Where("filter_id = ?", filterID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

func (d *Database) AddFavorite(fav *models.Favorite) error {
	return d.db.Create(fav).Error
}

func (d *Database) RemoveFavorite(userID, listingID uint) error {
	return d.db.Where("user_id = ? AND listing_id = ?", userID, listingID).
		Delete(&models.Favorite{}).Error
}

func (d *Database) IsFavorite(userID, listingID uint) (bool, error) {
	var count int64
	err := d.db.Model(&models.Favorite{}).
		Where("user_id = ? AND listing_id = ?", userID, listingID).
		Count(&count).Error
	return count > 0, err
}

func (d *Database) ListFavorites(userID uint) ([]models.Favorite, error) {
	var favorites []models.Favorite
	err := d.db.Preload("Listing").Where("user_id = ?", userID).Find(&favorites).Error
	return favorites, err
}

// AllFavorites returns every favorite with its listing, for the periodic
// price re-check job.
func (d *Database) AllFavorites() ([]models.Favorite, error) {
	var favorites []models.Favorite
	err := d.db.Preload("Listing").Find(&favorites).Error
	return favorites, err
}

func (d *Database) MarkFavoriteChecked(id uint, at time.Time) error {
	return d.db.Model(&models.Favorite{}).Where("id = ?", id).
		Update("last_checked_at", at).Error
}

func (d *Database) CreateNotification(n *models.Notification) error {
	return d.db.Create(n).Error
}

func (d *Database) ListNotifications(userID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	q := d.db.Where("user_id = ?", userID).Order("id DESC")
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var notifications []models.Notification
	err := q.Find(&notifications).Error
	return notifications, err
}

func (d *Database) MarkNotificationRead(id, userID uint, at time.Time) error {
	res := d.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
