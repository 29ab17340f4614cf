package scheduler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MuhammetEminGerim/autosniper/internal/diff"
)

// resetDailyQuotas zeroes the daily search counters at local midnight.
// Filters deferred by the quota gate come due again at the same moment.
func (c *Core) resetDailyQuotas() {
	now := c.now().Local()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	reset, err := c.registry.ResetExpiredDailyCounts(day)
	if err != nil {
		c.logger.WithError(err).Error("Daily quota reset failed")
		return
	}
	c.logger.WithField("users", reset).Info("Daily search quotas reset")
}

// cleanupOldListings removes listings not seen within the TTL, along with
// their favorites and filter memberships.
func (c *Core) cleanupOldListings() {
	cutoff := c.now().AddDate(0, 0, -c.cfg.Scheduler.ListingTTLDays)

	deleted, err := c.registry.DeleteListingsNotSeenSince(cutoff)
	if err != nil {
		c.logger.WithError(err).Error("Listing cleanup failed")
		return
	}
	if deleted > 0 {
		c.logger.WithFields(logrus.Fields{
			"deleted": deleted,
			"cutoff":  cutoff,
		}).Info("Old listings cleaned up")
	}
}

// checkFavoritePrices re-fetches every favorited listing from the source
// and routes price drops through the dispatcher. Individual failures never
// stop the sweep.
func (c *Core) checkFavoritePrices() {
	if c.detail == nil {
		return
	}

	favorites, err := c.registry.AllFavorites()
	if err != nil {
		c.logger.WithError(err).Error("Failed to load favorites for price check")
		return
	}
	if len(favorites) == 0 {
		return
	}

	c.logger.WithField("favorites", len(favorites)).Info("Starting favorite price check")

	updated := 0
	for _, fav := range favorites {
		if fav.Listing == nil {
			continue
		}

		sourceID, ok := listingSourceID(fav.Listing.SourceURL)
		if !ok {
			continue
		}

		ctx := context.Background()
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Scheduler.SourceTimeoutSeconds)*time.Second)
		raw, err := c.detail.Detail(callCtx, sourceID)
		cancel()
		if err != nil {
			c.logger.WithError(err).WithField("listing_id", fav.Listing.ID).
				Debug("Favorite price check fetch failed")
			continue
		}

		now := c.now()
		if err := c.registry.MarkFavoriteChecked(fav.ID, now); err != nil {
			c.logger.WithError(err).Error("Failed to stamp favorite check")
		}

		oldPrice := fav.Listing.CurrentPrice()
		if raw.Price <= 0 || raw.Price == oldPrice {
			continue
		}

		if err := c.registry.AppendPriceHistory(fav.Listing.ID, raw.Price, now); err != nil {
			c.logger.WithError(err).WithField("listing_id", fav.Listing.ID).
				Error("Failed to record favorite price move")
			continue
		}
		updated++

		direction, pct := diff.Classify(oldPrice, raw.Price)
		if direction != "down" {
			continue
		}

		user, err := c.registry.GetUser(fav.UserID)
		if err != nil {
			c.logger.WithError(err).WithField("user_id", fav.UserID).
				Error("Failed to load user for price drop notification")
			continue
		}

		listing := *fav.Listing
		listing.Price = raw.Price
		c.notifier.PriceDrop(ctx, user, diff.PriceChange{
			Listing:    &listing,
			OldPrice:   oldPrice,
			NewPrice:   raw.Price,
			Direction:  direction,
			Percentage: pct,
		})
	}

	c.logger.WithField("updated", updated).Info("Favorite price check completed")
}

// listingSourceID extracts the numeric source id from a canonical listing
// URL ("https://www.arabam.com/ilan/123").
func listingSourceID(sourceURL string) (int64, bool) {
	i := strings.LastIndex(sourceURL, "/")
	if i < 0 || i == len(sourceURL)-1 {
		return 0, false
	}
	id, err := strconv.ParseInt(sourceURL[i+1:], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
