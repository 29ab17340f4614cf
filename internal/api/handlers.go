package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/MuhammetEminGerim/autosniper/internal/database"
	"github.com/MuhammetEminGerim/autosniper/internal/models"
	"github.com/MuhammetEminGerim/autosniper/internal/quota"
	"github.com/MuhammetEminGerim/autosniper/internal/scheduler"
)

// Handler is the thin transport adapter over the core entry points.
// Authentication lives in the surrounding application; callers identify
// themselves with the X-User-ID header.
type Handler struct {
	db     *database.Database
	core   *scheduler.Core
	guard  *quota.Guard
	logger *logrus.Logger
}

func NewHandler(db *database.Database, core *scheduler.Core, guard *quota.Guard, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Handler{db: db, core: core, guard: guard, logger: logger}
}

func (h *Handler) userID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.GetHeader("X-User-ID"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-User-ID header"})
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) param(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

type filterRequest struct {
	Name                string          `json:"name" binding:"required"`
	Criteria            models.Criteria `json:"criteria"`
	IsActive            *bool           `json:"is_active"`
	AutoScanEnabled     *bool           `json:"auto_scan_enabled"`
	ScanIntervalMinutes int             `json:"scan_interval_minutes"`
}

func (h *Handler) CreateFilter(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.guard.AdmitFilterCreate(userID); err != nil {
		if errors.Is(err, quota.ErrFilterLimitReached) {
			c.JSON(http.StatusForbidden, gin.H{"error": "maximum filter count reached for your tier"})
			return
		}
		h.logger.WithError(err).Error("Filter limit check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create filter"})
		return
	}

	filter := &models.Filter{
		UserID:              userID,
		Name:                req.Name,
		Criteria:            req.Criteria,
		IsActive:            true,
		ScanIntervalMinutes: 30,
	}
	if req.IsActive != nil {
		filter.IsActive = *req.IsActive
	}
	if req.AutoScanEnabled != nil {
		filter.AutoScanEnabled = *req.AutoScanEnabled
	}
	if req.ScanIntervalMinutes > 0 {
		filter.ScanIntervalMinutes = req.ScanIntervalMinutes
	}

	if err := h.db.CreateFilter(filter); err != nil {
		h.logger.WithError(err).Error("Failed to create filter")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create filter"})
		return
	}

	if err := h.core.OnFilterChanged(filter.ID); err != nil {
		h.logger.WithError(err).WithField("filter_id", filter.ID).
			Error("Failed to schedule new filter")
	}

	c.JSON(http.StatusCreated, filter)
}

func (h *Handler) ListFilters(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	filters, err := h.db.ListFilters(userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list filters")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list filters"})
		return
	}
	c.JSON(http.StatusOK, filters)
}

func (h *Handler) getOwnedFilter(c *gin.Context) (*models.Filter, bool) {
	userID, ok := h.userID(c)
	if !ok {
		return nil, false
	}
	filterID, ok := h.param(c, "id")
	if !ok {
		return nil, false
	}

	filter, err := h.db.GetFilter(filterID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "filter not found"})
			return nil, false
		}
		h.logger.WithError(err).Error("Failed to load filter")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load filter"})
		return nil, false
	}
	if filter.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "filter not found"})
		return nil, false
	}
	return filter, true
}

func (h *Handler) GetFilter(c *gin.Context) {
	filter, ok := h.getOwnedFilter(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, filter)
}

func (h *Handler) UpdateFilter(c *gin.Context) {
	filter, ok := h.getOwnedFilter(c)
	if !ok {
		return
	}

	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter.Name = req.Name
	filter.Criteria = req.Criteria
	if req.IsActive != nil {
		filter.IsActive = *req.IsActive
	}
	if req.AutoScanEnabled != nil {
		filter.AutoScanEnabled = *req.AutoScanEnabled
	}
	if req.ScanIntervalMinutes > 0 {
		filter.ScanIntervalMinutes = req.ScanIntervalMinutes
	}

	if err := h.db.SaveFilter(filter); err != nil {
		h.logger.WithError(err).Error("Failed to update filter")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update filter"})
		return
	}

	if err := h.core.OnFilterChanged(filter.ID); err != nil {
		h.logger.WithError(err).WithField("filter_id", filter.ID).
			Error("Failed to reschedule filter")
	}

	c.JSON(http.StatusOK, filter)
}

func (h *Handler) DeleteFilter(c *gin.Context) {
	filter, ok := h.getOwnedFilter(c)
	if !ok {
		return
	}

	if err := h.db.DeleteFilter(filter.ID); err != nil {
		h.logger.WithError(err).Error("Failed to delete filter")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete filter"})
		return
	}
	h.core.OnFilterDeleted(filter.ID)

	c.JSON(http.StatusOK, gin.H{"deleted": filter.ID})
}

// TriggerScan starts a manual scan for a filter. Over-quota returns 429;
// an already-running scan returns 409.
func (h *Handler) TriggerScan(c *gin.Context) {
	filter, ok := h.getOwnedFilter(c)
	if !ok {
		return
	}

	err := h.core.RunManualScan(filter.ID)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "scan queued", "filter_id": filter.ID})
	case errors.Is(err, quota.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily search quota exceeded"})
	case errors.Is(err, scheduler.ErrScanInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "a scan for this filter is already running"})
	case errors.Is(err, scheduler.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scan queue is full, try again shortly"})
	default:
		h.logger.WithError(err).Error("Manual scan failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start scan"})
	}
}

func (h *Handler) ListFilterListings(c *gin.Context) {
	filter, ok := h.getOwnedFilter(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	listings, err := h.db.ListListingsForFilter(filter.ID, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list listings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list listings"})
		return
	}
	c.JSON(http.StatusOK, listings)
}

func (h *Handler) ListFilterScans(c *gin.Context) {
	filter, ok := h.getOwnedFilter(c)
	if !ok {
		return
	}

	jobs, err := h.db.ListScanJobs(filter.ID, 50)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list scan jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list scan jobs"})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// QuickSearch runs a one-shot search without saving a filter.
func (h *Handler) QuickSearch(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var criteria models.Criteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listings, err := h.core.QuickSearch(c.Request.Context(), userID, criteria)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, listings)
	case errors.Is(err, quota.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily search quota exceeded"})
	default:
		h.logger.WithError(err).Error("Quick search failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "search failed"})
	}
}

func (h *Handler) ListNotifications(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	unreadOnly := c.Query("unread") == "true"
	notifications, err := h.db.ListNotifications(userID, unreadOnly, 100)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list notifications")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, notifications)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	notifID, ok := h.param(c, "id")
	if !ok {
		return
	}

	if err := h.db.MarkNotificationRead(notifID, userID, time.Now()); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to mark notification read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notification read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": notifID})
}

func (h *Handler) ListFavorites(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	favorites, err := h.db.ListFavorites(userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list favorites")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list favorites"})
		return
	}
	c.JSON(http.StatusOK, favorites)
}

func (h *Handler) AddFavorite(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	listingID, ok := h.param(c, "listing_id")
	if !ok {
		return
	}

	listing, err := h.db.GetListing(listingID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to load listing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add favorite"})
		return
	}

	fav := &models.Favorite{
		UserID:         userID,
		ListingID:      listing.ID,
		PriceWhenAdded: listing.CurrentPrice(),
	}
	if err := h.db.AddFavorite(fav); err != nil {
		h.logger.WithError(err).Error("Failed to add favorite")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add favorite"})
		return
	}
	c.JSON(http.StatusCreated, fav)
}

func (h *Handler) RemoveFavorite(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	listingID, ok := h.param(c, "listing_id")
	if !ok {
		return
	}

	if err := h.db.RemoveFavorite(userID, listingID); err != nil {
		h.logger.WithError(err).Error("Failed to remove favorite")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove favorite"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": listingID})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
