// Package connector defines the source connector capability: fetching raw
// listing records from the marketplace for a set of search criteria.
package connector

import (
	"context"
	"errors"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

// All connector failures are transient from the scheduler's point of view;
// they distinguish cause, not retryability.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrRateLimited       = errors.New("source rate limited")
	ErrParseError        = errors.New("source response unparseable")
)

// Transient reports whether err belongs to the connector error taxonomy.
func Transient(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrParseError)
}

// Source fetches listing records matching the given criteria. Each call
// triggers a fresh remote fetch; the returned slice is finite and complete.
type Source interface {
	Scan(ctx context.Context, criteria models.Criteria) ([]models.RawListing, error)
}

// DetailFetcher re-fetches a single listing by its source id. Used by the
// favorite price checker.
type DetailFetcher interface {
	Detail(ctx context.Context, listingID int64) (*models.RawListing, error)
}
