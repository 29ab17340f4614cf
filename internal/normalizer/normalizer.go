// Package normalizer maps raw source records to the canonical listing
// schema. The dedup key is the source URL because the feed's numeric ids are
// not guaranteed stable across scans.
package normalizer

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

const listingURLFormat = "https://www.arabam.com/ilan/%d"

type Normalizer struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Normalizer {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Normalizer{logger: logger}
}

// Normalize converts a batch of raw records into canonical listings, deduped
// by source URL. Malformed records are dropped and counted, never fatal.
func (n *Normalizer) Normalize(raw []models.RawListing, now time.Time) (listings []*models.Listing, dropped int) {
	seen := make(map[string]struct{}, len(raw))

	for _, r := range raw {
		l, err := n.normalizeOne(r, now)
		if err != nil {
			dropped++
			n.logger.WithError(err).WithField("raw_id", r.ID).Debug("Dropped malformed listing")
			continue
		}
		if _, dup := seen[l.SourceURL]; dup {
			continue
		}
		seen[l.SourceURL] = struct{}{}
		listings = append(listings, l)
	}

	return listings, dropped
}

func (n *Normalizer) normalizeOne(r models.RawListing, now time.Time) (*models.Listing, error) {
	if r.ID <= 0 {
		return nil, fmt.Errorf("missing source id")
	}
	if strings.TrimSpace(r.Title) == "" {
		return nil, fmt.Errorf("missing title")
	}
	if r.Price <= 0 {
		return nil, fmt.Errorf("invalid price %v", r.Price)
	}

	brand, model := splitCategory(r.Category)

	l := &models.Listing{
		SourceURL:    fmt.Sprintf(listingURLFormat, r.ID),
		Title:        strings.TrimSpace(r.Title),
		Price:        r.Price,
		Year:         r.ModelYear,
		Brand:        brand,
		Model:        model,
		Mileage:      r.Mileage,
		City:         city(r.Location),
		FuelType:     r.FuelType,
		Transmission: r.Transmission,
		DamageReport: r.DamageInfo,
		FirstSeenAt:  now,
		LastSeenAt:   now,
	}

	if photo := photoURL(r.Photo); photo != "" {
		l.Images = []string{photo}
	}

	return l, nil
}

// photoURL resolves the source's resolution placeholder to a concrete size.
func photoURL(photo string) string {
	return strings.ReplaceAll(photo, "{0}", "800x600")
}

// city takes the province from a "Province / District" location string.
func city(location string) string {
	if i := strings.Index(location, "/"); i >= 0 {
		location = location[:i]
	}
	return strings.TrimSpace(location)
}

// splitCategory extracts brand and model from a "Brand / Model" category
// path. A single-segment category is treated as the brand.
func splitCategory(category string) (brand, model string) {
	parts := strings.SplitN(category, "/", 2)
	brand = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		model = strings.TrimSpace(parts[1])
	}
	return brand, model
}
