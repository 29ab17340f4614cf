package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

// ArabamClient talks to the arabam sandbox listing API.
type ArabamClient struct {
	baseURL  string
	pageSize int
	client   *http.Client
	logger   *logrus.Logger
}

// NewArabamClient creates a client for the given API base URL. The injected
// http.Client controls the per-call timeout.
func NewArabamClient(baseURL string, pageSize int, client *http.Client, logger *logrus.Logger) *ArabamClient {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &ArabamClient{
		baseURL:  baseURL,
		pageSize: pageSize,
		client:   client,
		logger:   logger,
	}
}

// Scan fetches one page of listings matching the criteria.
func (c *ArabamClient) Scan(ctx context.Context, criteria models.Criteria) ([]models.RawListing, error) {
	params := url.Values{}
	params.Set("take", strconv.Itoa(c.pageSize))
	params.Set("skip", "0")
	sort := criteria.Sort
	if sort == 0 {
		sort = 1 // newest first
	}
	params.Set("sort", strconv.Itoa(sort))

	if criteria.MinPrice != nil {
		params.Set("minPrice", strconv.Itoa(*criteria.MinPrice))
	}
	if criteria.MaxPrice != nil {
		params.Set("maxPrice", strconv.Itoa(*criteria.MaxPrice))
	}
	if criteria.MinYear != nil {
		params.Set("minYear", strconv.Itoa(*criteria.MinYear))
	}
	if criteria.MaxYear != nil {
		params.Set("maxYear", strconv.Itoa(*criteria.MaxYear))
	}
	if criteria.CategoryID != nil {
		params.Set("categoryId", strconv.Itoa(*criteria.CategoryID))
	}

	endpoint := fmt.Sprintf("%s/listing?%s", c.baseURL, params.Encode())

	var listings []models.RawListing
	if err := c.getJSON(ctx, endpoint, &listings); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"count": len(listings),
		"sort":  sort,
	}).Debug("Fetched listings from source")

	return listings, nil
}

// Detail fetches a single listing by source id.
func (c *ArabamClient) Detail(ctx context.Context, listingID int64) (*models.RawListing, error) {
	endpoint := fmt.Sprintf("%s/detail?id=%d", c.baseURL, listingID)

	var listing models.RawListing
	if err := c.getJSON(ctx, endpoint, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

func (c *ArabamClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "AutoSniper/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrParseError, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrParseError, err)
	}
	return nil
}
