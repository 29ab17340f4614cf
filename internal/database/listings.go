package database

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

// GetListingBySourceURL returns (nil, nil) when no listing exists for the
// given source key.
func (d *Database) GetListingBySourceURL(sourceURL string) (*models.Listing, error) {
	var listing models.Listing
	err := d.db.Where("source_url = ?", sourceURL).First(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (d *Database) GetListing(id uint) (*models.Listing, error) {
	var listing models.Listing
	if err := d.db.First(&listing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &listing, nil
}

func (d *Database) InsertListing(l *models.Listing) error {
	return d.db.Create(l).Error
}

// AppendPriceHistory appends one price entry and moves the current price and
// last-seen stamp, atomically per listing.
func (d *Database) AppendPriceHistory(listingID uint, price float64, at time.Time) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		var listing models.Listing
		if err := tx.First(&listing, listingID).Error; err != nil {
			return err
		}
		listing.PriceHistory = append(listing.PriceHistory, models.PriceEntry{
			Price:      price,
			RecordedAt: at,
		})
		return tx.Model(&listing).Updates(map[string]interface{}{
			"price":         price,
			"last_seen_at":  at,
			"price_history": listing.PriceHistory,
		}).Error
	})
}

// TouchListing moves last_seen_at only.
func (d *Database) TouchListing(listingID uint, at time.Time) error {
	return d.db.Model(&models.Listing{}).Where("id = ?", listingID).
		Update("last_seen_at", at).Error
}

// SyncFilterMembership upserts membership rows for the listings the scan
// returned and advances the miss counter for members it did not. Members
// missing for staleAfter consecutive scans are marked stale; the count of
// newly marked rows is returned.
func (d *Database) SyncFilterMembership(filterID uint, seenListingIDs []uint, staleAfter int, now time.Time) (int, error) {
	var marked int64
	err := d.db.Transaction(func(tx *gorm.DB) error {
		for _, listingID := range seenListingIDs {
			var link models.FilterListing
			err := tx.Where("filter_id = ? AND listing_id = ?", filterID, listingID).
				First(&link).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				link = models.FilterListing{
					FilterID:      filterID,
					ListingID:     listingID,
					LastMatchedAt: &now,
				}
				if err := tx.Create(&link).Error; err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			if err := tx.Model(&link).Updates(map[string]interface{}{
				"missed_scans":    0,
				"stale":           false,
				"last_matched_at": now,
			}).Error; err != nil {
				return err
			}
		}

		miss := tx.Model(&models.FilterListing{}).
			Where("filter_id = ?", filterID)
		if len(seenListingIDs) > 0 {
			miss = miss.Where("listing_id NOT IN ?", seenListingIDs)
		}
		if err := miss.Update("missed_scans", gorm.Expr("missed_scans + 1")).Error; err != nil {
			return err
		}

		res := tx.Model(&models.FilterListing{}).
			Where("filter_id = ? AND stale = ? AND missed_scans >= ?", filterID, false, staleAfter).
			Update("stale", true)
		if res.Error != nil {
			return res.Error
		}
		marked = res.RowsAffected
		return nil
	})
	return int(marked), err
}

// ListListingsForFilter returns the filter's current (non-stale) result set,
// newest first.
func (d *Database) ListListingsForFilter(filterID uint, limit int) ([]models.Listing, error) {
	var listings []models.Listing
	q := d.db.
		Joins("JOIN filter_listings ON filter_listings.listing_id = listings.id").
		Where("filter_listings.filter_id = ? AND filter_listings.stale = ?", filterID, false).
		Order("listings.first_seen_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&listings).Error
	return listings, err
}

// DeleteListingsNotSeenSince removes listings last seen before the cutoff,
// together with their favorites and filter memberships. Maintenance path
// only; the scan path never hard-deletes.
func (d *Database) DeleteListingsNotSeenSince(cutoff time.Time) (int64, error) {
	var deleted int64
	err := d.db.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.Listing{}).
			Where("last_seen_at < ?", cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("listing_id IN ?", ids).Delete(&models.Favorite{}).Error; err != nil {
			return err
		}
		if err := tx.Where("listing_id IN ?", ids).Delete(&models.FilterListing{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Listing{}, ids)
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}
