// Package scheduler owns per-filter timing state, concurrency control, and
// retries for marketplace scans. A cron-driven tick decides which filters
// are due; a bounded worker pool executes the scans.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/MuhammetEminGerim/autosniper/config"
	"github.com/MuhammetEminGerim/autosniper/internal/connector"
	"github.com/MuhammetEminGerim/autosniper/internal/diff"
	"github.com/MuhammetEminGerim/autosniper/internal/models"
	"github.com/MuhammetEminGerim/autosniper/internal/normalizer"
	"github.com/MuhammetEminGerim/autosniper/internal/quota"
)

var (
	ErrFilterNotFound = errors.New("filter not found")
	ErrScanInProgress = errors.New("a scan for this filter is already running")
)

// Registry is the persistence collaborator: filter timing state, scan job
// records, user rows, and the maintenance operations.
type Registry interface {
	DueFilters(now time.Time) ([]models.Filter, error)
	GetFilter(id uint) (*models.Filter, error)
	SetFilterRunStatus(id uint, status models.RunStatus) error
	SetNextScanAt(id uint, next time.Time) error
	CompleteFilterScan(id uint, last, next time.Time, newFound int) error
	FailFilterScan(id uint, next time.Time) error

	CreateScanJob(job *models.ScanJob) error
	FinishScanJob(job *models.ScanJob, status models.ScanStatus, finishedAt time.Time) error

	GetUser(id uint) (*models.User, error)
	ResetExpiredDailyCounts(day time.Time) (int64, error)

	DeleteListingsNotSeenSince(cutoff time.Time) (int64, error)
	AllFavorites() ([]models.Favorite, error)
	MarkFavoriteChecked(id uint, at time.Time) error
	AppendPriceHistory(listingID uint, price float64, at time.Time) error
}

// Notifier receives completed scan results and favorite price drops.
type Notifier interface {
	ScanCompleted(ctx context.Context, user *models.User, filter *models.Filter, res *diff.Result)
	PriceDrop(ctx context.Context, user *models.User, change diff.PriceChange)
}

// Core is the orchestrator: it selects due filters, gates them through the
// quota guard, runs the fetch/normalize/diff pipeline on a worker pool, and
// hands results to the notifier.
type Core struct {
	cfg      *config.Config
	registry Registry
	source   connector.Source
	detail   connector.DetailFetcher
	norm     *normalizer.Normalizer
	engine   *diff.Engine
	guard    *quota.Guard
	notifier Notifier

	limiter *rate.Limiter
	leases  *leaseMap
	queue   *jobQueue
	cron    *cron.Cron

	stopChan chan struct{}
	wg       sync.WaitGroup
	logger   *logrus.Logger

	// injectable clock
	now func() time.Time
}

func NewCore(
	cfg *config.Config,
	registry Registry,
	source connector.Source,
	detail connector.DetailFetcher,
	norm *normalizer.Normalizer,
	engine *diff.Engine,
	guard *quota.Guard,
	notifier Notifier,
	logger *logrus.Logger,
) *Core {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Core{
		cfg:      cfg,
		registry: registry,
		source:   source,
		detail:   detail,
		norm:     norm,
		engine:   engine,
		guard:    guard,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Scheduler.RateLimitPerSecond), cfg.Scheduler.RateLimitBurst),
		leases:   newLeaseMap(),
		queue:    newJobQueue(cfg.Scheduler.QueueSize),
		cron:     cron.New(),
		stopChan: make(chan struct{}),
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches the worker pool and registers the periodic jobs: the scan
// tick, the midnight quota reset, the daily listing cleanup, and the
// favorite price check.
func (c *Core) Start() error {
	for i := 0; i < c.cfg.Scheduler.WorkerCount; i++ {
		c.wg.Add(1)
		go c.workerLoop(i)
	}

	if _, err := c.cron.AddFunc(fmt.Sprintf("@every %ds", c.cfg.Scheduler.TickSeconds), c.RunScheduledTick); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	if _, err := c.cron.AddFunc("0 0 * * *", c.resetDailyQuotas); err != nil {
		return fmt.Errorf("register quota reset: %w", err)
	}
	if _, err := c.cron.AddFunc("0 3 * * *", c.cleanupOldListings); err != nil {
		return fmt.Errorf("register cleanup: %w", err)
	}
	if _, err := c.cron.AddFunc(fmt.Sprintf("@every %dh", c.cfg.Scheduler.FavoriteCheckHours), c.checkFavoritePrices); err != nil {
		return fmt.Errorf("register favorite check: %w", err)
	}

	c.cron.Start()
	c.logger.WithFields(logrus.Fields{
		"workers":      c.cfg.Scheduler.WorkerCount,
		"tick_seconds": c.cfg.Scheduler.TickSeconds,
	}).Info("Scheduler started")
	return nil
}

// Stop halts the cron jobs and drains the worker pool.
func (c *Core) Stop() {
	c.cron.Stop()
	c.queue.Close()
	close(c.stopChan)
	c.wg.Wait()
	c.logger.Info("Scheduler stopped")
}

// RunScheduledTick selects all due filters and submits them to the worker
// pool. Filters whose lease is already held are skipped, never
// double-scheduled. A failure for one filter never aborts the tick.
func (c *Core) RunScheduledTick() {
	now := c.now()
	due, err := c.registry.DueFilters(now)
	if err != nil {
		c.logger.WithError(err).Error("Failed to select due filters")
		return
	}
	if len(due) == 0 {
		return
	}

	c.logger.WithField("due", len(due)).Debug("Scheduling due filters")

	for i := range due {
		filter := due[i]
		if err := c.submit(&filter, false, now); err != nil {
			if !errors.Is(err, ErrScanInProgress) {
				c.logger.WithError(err).WithField("filter_id", filter.ID).
					Warn("Could not schedule filter scan")
			}
		}
	}
}

// RunManualScan triggers an immediate scan for one filter, bypassing the
// due-time check. The quota gate still applies and surfaces
// quota.ErrQuotaExceeded synchronously; the per-filter lease still applies
// and surfaces ErrScanInProgress.
func (c *Core) RunManualScan(filterID uint) error {
	filter, err := c.registry.GetFilter(filterID)
	if err != nil {
		return fmt.Errorf("%w: id %d", ErrFilterNotFound, filterID)
	}

	now := c.now()
	if err := c.guard.AdmitScan(filter.UserID, now); err != nil {
		return err
	}

	return c.submit(filter, true, now)
}

// submit acquires the filter's lease and enqueues the scan request.
func (c *Core) submit(filter *models.Filter, manual bool, now time.Time) error {
	l, ok := c.leases.Acquire(filter.ID)
	if !ok {
		return ErrScanInProgress
	}

	if err := c.registry.SetFilterRunStatus(filter.ID, models.RunStatusQueued); err != nil {
		c.leases.Release(filter.ID)
		return fmt.Errorf("mark filter queued: %w", err)
	}

	req := &scanRequest{filter: filter, lease: l, manual: manual, scheduledAt: now}
	if err := c.queue.Push(req); err != nil {
		c.leases.Release(filter.ID)
		if statusErr := c.registry.SetFilterRunStatus(filter.ID, models.RunStatusIdle); statusErr != nil {
			c.logger.WithError(statusErr).WithField("filter_id", filter.ID).
				Error("Failed to revert filter status after queue rejection")
		}
		return err
	}
	return nil
}

// OnFilterChanged recomputes next_scan_at after a user edit so a newly
// enabled filter does not wait a full interval, and cancels the in-flight
// scan of a deactivated filter.
func (c *Core) OnFilterChanged(filterID uint) error {
	filter, err := c.registry.GetFilter(filterID)
	if err != nil {
		return fmt.Errorf("%w: id %d", ErrFilterNotFound, filterID)
	}

	if !filter.IsActive {
		c.leases.Cancel(filterID)
	}

	if filter.IsActive && filter.AutoScanEnabled {
		now := c.now()
		next := now
		if filter.LastScanAt != nil {
			next = filter.LastScanAt.Add(filter.Interval())
			if next.Before(now) {
				next = now
			}
		}
		if err := c.registry.SetNextScanAt(filterID, next); err != nil {
			return fmt.Errorf("recompute next scan: %w", err)
		}
	}
	return nil
}

// OnFilterDeleted flags any in-flight scan of the filter so its result is
// discarded.
func (c *Core) OnFilterDeleted(filterID uint) {
	if c.leases.Cancel(filterID) {
		c.logger.WithField("filter_id", filterID).Info("Cancelled in-flight scan of deleted filter")
	}
}

// QuickSearch runs a one-shot search through the quota gate and the
// normalizer without persisting or diffing anything.
func (c *Core) QuickSearch(ctx context.Context, userID uint, criteria models.Criteria) ([]*models.Listing, error) {
	now := c.now()
	if err := c.guard.AdmitScan(userID, now); err != nil {
		return nil, err
	}

	raw, err := c.fetch(ctx, criteria)
	if err != nil {
		return nil, err
	}

	listings, dropped := c.norm.Normalize(raw, c.now())
	if dropped > 0 {
		c.logger.WithField("dropped", dropped).Debug("Quick search dropped malformed records")
	}

	if err := c.guard.RecordScan(userID); err != nil {
		c.logger.WithError(err).WithField("user_id", userID).Error("Failed to record quick search against quota")
	}
	return listings, nil
}

func (c *Core) workerLoop(id int) {
	defer c.wg.Done()
	for {
		req, ok := c.queue.Pop(c.stopChan)
		if !ok {
			return
		}
		c.execute(req)
	}
}

// execute runs one scan request end to end. All failure modes are scoped to
// this request; nothing escapes to other filters or the tick.
func (c *Core) execute(req *scanRequest) {
	filter := req.filter
	defer c.leases.Release(filter.ID)

	log := c.logger.WithFields(logrus.Fields{
		"filter_id": filter.ID,
		"filter":    filter.Name,
		"manual":    req.manual,
	})

	now := c.now()

	// Scheduled scans meet the quota gate here: over-quota defers to the
	// next local midnight instead of failing, so deferred filters do not
	// storm the source when the day rolls over.
	if !req.manual {
		if err := c.guard.AdmitScan(filter.UserID, now); err != nil {
			if errors.Is(err, quota.ErrQuotaExceeded) {
				next := quota.NextReset(now)
				if err := c.registry.SetNextScanAt(filter.ID, next); err != nil {
					log.WithError(err).Error("Failed to defer over-quota filter")
				}
				if err := c.registry.SetFilterRunStatus(filter.ID, models.RunStatusIdle); err != nil {
					log.WithError(err).Error("Failed to reset filter status after deferral")
				}
				log.WithField("next_scan_at", next).Info("Scan deferred to quota reset")
				return
			}
			log.WithError(err).Error("Quota check failed")
			if err := c.registry.SetFilterRunStatus(filter.ID, models.RunStatusIdle); err != nil {
				log.WithError(err).Error("Failed to reset filter status")
			}
			return
		}
	}

	if err := c.registry.SetFilterRunStatus(filter.ID, models.RunStatusRunning); err != nil {
		log.WithError(err).Error("Failed to mark filter running")
		return
	}

	job := &models.ScanJob{
		FilterID:    filter.ID,
		Manual:      req.manual,
		ScheduledAt: req.scheduledAt,
		StartedAt:   now,
		Status:      models.ScanStatusRunning,
	}
	if err := c.registry.CreateScanJob(job); err != nil {
		log.WithError(err).Error("Failed to create scan job record")
		c.failScan(job, filter, fmt.Errorf("create scan job: %w", err))
		return
	}

	raw, err := c.fetchWithRetry(filter.Criteria)
	if err != nil {
		log.WithError(err).Warn("Scan failed after retries")
		c.failScan(job, filter, err)
		return
	}

	listings, dropped := c.norm.Normalize(raw, c.now())

	// Cancellation point: a filter deleted or deactivated while the scan
	// was in flight gets its result discarded, with no persistence write
	// and no notification.
	if req.lease.Cancelled() || c.filterGone(filter.ID) {
		job.Error = "filter removed or disabled during scan"
		if err := c.registry.FinishScanJob(job, models.ScanStatusFailed, c.now()); err != nil {
			log.WithError(err).Error("Failed to finish cancelled scan job")
		}
		log.Info("Scan result discarded after cancellation")
		return
	}

	res, err := c.engine.Run(filter.ID, listings, c.now())
	if err != nil {
		// Persistence errors are fatal to this job and are not retried
		// within the same tick; the filter comes due again next cycle.
		log.WithError(err).Error("Scan persistence failed")
		c.failScan(job, filter, err)
		return
	}

	if err := c.guard.RecordScan(filter.UserID); err != nil {
		log.WithError(err).Error("Failed to record scan against quota")
	}

	finished := c.now()
	next := finished.Add(filter.Interval())
	if err := c.registry.CompleteFilterScan(filter.ID, finished, next, len(res.New)); err != nil {
		log.WithError(err).Error("Failed to update filter timing")
	}

	job.FoundCount = len(raw)
	job.NewCount = len(res.New)
	job.ChangedCount = len(res.Changed)
	job.UnchangedCount = res.UnchangedCount
	job.DroppedCount = dropped
	if err := c.registry.FinishScanJob(job, models.ScanStatusSucceeded, finished); err != nil {
		log.WithError(err).Error("Failed to finish scan job record")
	}

	log.WithFields(logrus.Fields{
		"found":     len(raw),
		"new":       len(res.New),
		"changed":   len(res.Changed),
		"unchanged": res.UnchangedCount,
		"stale":     res.StaleMarked,
		"dropped":   dropped,
	}).Info("Scan completed")

	user, err := c.registry.GetUser(filter.UserID)
	if err != nil {
		log.WithError(err).Error("Failed to load user for notification")
		return
	}
	c.notifier.ScanCompleted(context.Background(), user, filter, res)
}

// failScan marks the job and the filter failed and schedules the next
// attempt one interval out so failures cannot busy-loop.
func (c *Core) failScan(job *models.ScanJob, filter *models.Filter, cause error) {
	now := c.now()
	job.Error = cause.Error()
	if job.ID != 0 {
		if err := c.registry.FinishScanJob(job, models.ScanStatusFailed, now); err != nil {
			c.logger.WithError(err).WithField("filter_id", filter.ID).
				Error("Failed to finish failed scan job")
		}
	}
	if err := c.registry.FailFilterScan(filter.ID, now.Add(filter.Interval())); err != nil {
		c.logger.WithError(err).WithField("filter_id", filter.ID).
			Error("Failed to mark filter failed")
	}
}

// fetchWithRetry calls the source with exponential backoff. Every connector
// failure, timeouts included, is transient; after the attempt budget the
// last error is returned.
func (c *Core) fetchWithRetry(criteria models.Criteria) ([]models.RawListing, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.Scheduler.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt)):
			case <-c.stopChan:
				return nil, lastErr
			}
		}

		raw, err := c.fetch(context.Background(), criteria)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		c.logger.WithError(err).WithField("attempt", attempt+1).Warn("Source fetch failed")
	}
	return nil, lastErr
}

// fetch performs one rate-limited, timeout-bounded source call.
func (c *Core) fetch(ctx context.Context, criteria models.Criteria) ([]models.RawListing, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: limiter: %v", connector.ErrSourceUnavailable, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Scheduler.SourceTimeoutSeconds)*time.Second)
	defer cancel()
	return c.source.Scan(callCtx, criteria)
}

// backoff returns the delay before the given retry attempt (1-based),
// doubling from the base and capped at the configured maximum.
func (c *Core) backoff(attempt int) time.Duration {
	base := time.Duration(c.cfg.Scheduler.BackoffBaseSeconds) * time.Second
	max := time.Duration(c.cfg.Scheduler.BackoffMaxSeconds) * time.Second
	d := base << (attempt - 1)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// filterGone reports whether the filter was deleted or deactivated.
func (c *Core) filterGone(filterID uint) bool {
	filter, err := c.registry.GetFilter(filterID)
	if err != nil {
		return true
	}
	return !filter.IsActive
}
