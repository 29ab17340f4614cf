// Package notify fans scan results out to the enabled notification
// channels. Channels are independent: one channel failing never blocks the
// others, and delivery errors never propagate to the owning scan.
package notify

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MuhammetEminGerim/autosniper/internal/diff"
	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

// Message is a channel-agnostic notification payload.
type Message struct {
	Title     string
	Body      string
	URL       string
	FilterID  *uint
	ListingID *uint
}

// Channel is a single delivery capability (push, messaging bot, in-app feed).
type Channel interface {
	Name() string
	Send(ctx context.Context, user *models.User, msg Message) error
}

// FavoriteStore answers whether a listing is in a user's favorites set.
type FavoriteStore interface {
	IsFavorite(userID, listingID uint) (bool, error)
}

type Dispatcher struct {
	channels  []Channel
	favorites FavoriteStore
	timeout   time.Duration
	retries   int
	// minimum drop percentage for per-listing price notifications;
	// 0 means any decrease
	minDropPercent float64
	logger         *logrus.Logger
}

func NewDispatcher(channels []Channel, favorites FavoriteStore, timeout time.Duration, retries int, minDropPercent float64, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		channels:       channels,
		favorites:      favorites,
		timeout:        timeout,
		retries:        retries,
		minDropPercent: minDropPercent,
		logger:         logger,
	}
}

// ScanCompleted dispatches the notifications owed for one completed scan:
// a single aggregated message for new listings, and per-listing messages
// for significant price drops on favorited listings.
func (d *Dispatcher) ScanCompleted(ctx context.Context, user *models.User, filter *models.Filter, res *diff.Result) {
	if res == nil {
		return
	}

	if len(res.New) > 0 {
		d.fanOut(ctx, user, newListingsMessage(filter, res.New))
	}

	for _, change := range res.Changed {
		fav, err := d.favorites.IsFavorite(user.ID, change.Listing.ID)
		if err != nil {
			d.logger.WithError(err).WithField("listing_id", change.Listing.ID).
				Error("Favorite lookup failed")
			continue
		}
		if !fav {
			continue
		}
		d.PriceDrop(ctx, user, change)
	}
}

// PriceDrop dispatches a single price-move notification for a favorited
// listing, applying the significance threshold.
func (d *Dispatcher) PriceDrop(ctx context.Context, user *models.User, change diff.PriceChange) {
	if !d.significant(change) {
		return
	}
	d.fanOut(ctx, user, priceDropMessage(change))
}

func (d *Dispatcher) significant(change diff.PriceChange) bool {
	if change.Direction != "down" {
		return false
	}
	return change.Percentage >= d.minDropPercent
}

// fanOut invokes every channel concurrently, each with its own timeout and
// at most d.retries retries. Failures are logged, never returned.
func (d *Dispatcher) fanOut(ctx context.Context, user *models.User, msg Message) {
	var wg sync.WaitGroup
	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			d.sendWithRetry(ctx, ch, user, msg)
		}(ch)
	}
	wg.Wait()
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, ch Channel, user *models.User, msg Message) {
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		lastErr = ch.Send(callCtx, user, msg)
		cancel()
		if lastErr == nil {
			return
		}
	}
	d.logger.WithError(lastErr).WithFields(logrus.Fields{
		"channel": ch.Name(),
		"user_id": user.ID,
		"title":   msg.Title,
	}).Error("Notification delivery failed")
}

func newListingsMessage(filter *models.Filter, listings []*models.Listing) Message {
	filterID := filter.ID
	body := fmt.Sprintf("%d new listings for %q", len(listings), filter.Name)

	// Include a short sample; the aggregated message never grows with
	// the result count.
	sample := listings
	if len(sample) > 5 {
		sample = sample[:5]
	}
	for _, l := range sample {
		body += fmt.Sprintf("\n• %s — %.0f TL", l.Title, l.Price)
	}

	return Message{
		Title:    fmt.Sprintf("🔔 %d new listings: %s", len(listings), filter.Name),
		Body:     body,
		FilterID: &filterID,
	}
}

func priceDropMessage(change diff.PriceChange) Message {
	listingID := change.Listing.ID
	return Message{
		Title: fmt.Sprintf("📉 Price drop: %s", change.Listing.Title),
		Body: fmt.Sprintf("%s\n%.0f TL → %.0f TL (%.1f%% down)",
			change.Listing.Title, change.OldPrice, change.NewPrice, change.Percentage),
		URL:       change.Listing.SourceURL,
		ListingID: &listingID,
	}
}
