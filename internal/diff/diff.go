// Package diff classifies scanned listings against stored state: new
// listings, price movements, unchanged sightings, and per-filter staleness.
package diff

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

// ListingStore is the persistence capability the engine writes through.
// Implementations must keep per-listing updates atomic.
type ListingStore interface {
	// GetListingBySourceURL returns (nil, nil) when no row exists.
	GetListingBySourceURL(sourceURL string) (*models.Listing, error)
	InsertListing(l *models.Listing) error
	AppendPriceHistory(listingID uint, price float64, at time.Time) error
	TouchListing(listingID uint, at time.Time) error
	// SyncFilterMembership records which listings the filter's scan
	// returned and marks members missing for staleAfter consecutive
	// scans as stale. Returns the number newly marked.
	SyncFilterMembership(filterID uint, seenListingIDs []uint, staleAfter int, now time.Time) (int, error)
}

// PriceChange describes one listing whose price moved since the last scan.
type PriceChange struct {
	Listing    *models.Listing
	OldPrice   float64
	NewPrice   float64
	Direction  string // "down", "up", or "same"
	Percentage float64
}

// Result is the output of one scan's diff; it is the sole input to the
// notification dispatcher.
type Result struct {
	New            []*models.Listing
	Changed        []PriceChange
	UnchangedCount int
	StaleMarked    int
}

type Engine struct {
	store      ListingStore
	staleAfter int
	logger     *logrus.Logger
}

func NewEngine(store ListingStore, staleAfter int, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if staleAfter <= 0 {
		staleAfter = 3
	}
	return &Engine{store: store, staleAfter: staleAfter, logger: logger}
}

// Run compares the normalized scan output for a filter against stored
// listings, persisting inserts and price history as it goes. Any store
// error aborts the run; the caller treats that as fatal to the job.
func (e *Engine) Run(filterID uint, incoming []*models.Listing, now time.Time) (*Result, error) {
	res := &Result{}
	seenIDs := make([]uint, 0, len(incoming))

	for _, l := range incoming {
		existing, err := e.store.GetListingBySourceURL(l.SourceURL)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", l.SourceURL, err)
		}

		if existing == nil {
			l.FirstSeenAt = now
			l.LastSeenAt = now
			l.PriceHistory = []models.PriceEntry{{Price: l.Price, RecordedAt: now}}
			if err := e.store.InsertListing(l); err != nil {
				return nil, fmt.Errorf("insert %s: %w", l.SourceURL, err)
			}
			res.New = append(res.New, l)
			seenIDs = append(seenIDs, l.ID)
			continue
		}

		seenIDs = append(seenIDs, existing.ID)
		oldPrice := existing.CurrentPrice()

		if l.Price == oldPrice {
			if err := e.store.TouchListing(existing.ID, now); err != nil {
				return nil, fmt.Errorf("touch %s: %w", l.SourceURL, err)
			}
			res.UnchangedCount++
			continue
		}

		if err := e.store.AppendPriceHistory(existing.ID, l.Price, now); err != nil {
			return nil, fmt.Errorf("append price %s: %w", l.SourceURL, err)
		}

		direction, pct := Classify(oldPrice, l.Price)
		existing.Price = l.Price
		existing.LastSeenAt = now
		res.Changed = append(res.Changed, PriceChange{
			Listing:    existing,
			OldPrice:   oldPrice,
			NewPrice:   l.Price,
			Direction:  direction,
			Percentage: pct,
		})

		e.logger.WithFields(logrus.Fields{
			"listing_id": existing.ID,
			"old_price":  oldPrice,
			"new_price":  l.Price,
			"direction":  direction,
			"percentage": pct,
		}).Info("Price change detected")
	}

	stale, err := e.store.SyncFilterMembership(filterID, seenIDs, e.staleAfter, now)
	if err != nil {
		return nil, fmt.Errorf("sync membership for filter %d: %w", filterID, err)
	}
	res.StaleMarked = stale

	return res, nil
}

// Classify returns the movement direction and the percentage change of a
// price move, as a drop percentage rounded to one decimal. A price increase
// yields a negative percentage.
func Classify(oldPrice, newPrice float64) (direction string, percentage float64) {
	switch {
	case newPrice < oldPrice:
		direction = "down"
	case newPrice > oldPrice:
		direction = "up"
	default:
		return "same", 0
	}
	percentage = math.Round(((oldPrice-newPrice)/oldPrice)*1000) / 10
	return direction, percentage
}
