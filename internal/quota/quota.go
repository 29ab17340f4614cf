// Package quota gates scan execution and filter creation by subscription
// tier usage limits.
package quota

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

var (
	ErrQuotaExceeded      = errors.New("daily search quota exceeded")
	ErrFilterLimitReached = errors.New("maximum filter count reached")
)

// UserStore is the persistence capability the guard reads and resets quota
// state through.
type UserStore interface {
	GetUser(id uint) (*models.User, error)
	ResetDailyCount(userID uint, day time.Time) error
	IncrementSearchCount(userID uint) error
	CountFilters(userID uint) (int64, error)
}

type Guard struct {
	store  UserStore
	logger *logrus.Logger
}

func NewGuard(store UserStore, logger *logrus.Logger) *Guard {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Guard{store: store, logger: logger}
}

// AdmitScan checks whether the user may run one more scan today, lazily
// resetting the counter when the local day has rolled over. It does not
// consume quota; call RecordScan after a successful scan.
func (g *Guard) AdmitScan(userID uint, now time.Time) error {
	user, err := g.store.GetUser(userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}

	if !sameLocalDay(user.LastResetDate, now) {
		if err := g.store.ResetDailyCount(userID, dateOnly(now)); err != nil {
			return fmt.Errorf("reset daily count for user %d: %w", userID, err)
		}
		user.DailySearchCount = 0
	}

	limit := models.LimitsForTier(user.SubscriptionTier).DailySearchLimit
	if user.DailySearchCount >= limit {
		g.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"tier":    user.SubscriptionTier,
			"count":   user.DailySearchCount,
			"limit":   limit,
		}).Debug("Scan denied by quota")
		return ErrQuotaExceeded
	}

	return nil
}

// RecordScan consumes exactly one unit of daily quota. Called once per
// successful scan regardless of how many listings it returned.
func (g *Guard) RecordScan(userID uint) error {
	if err := g.store.IncrementSearchCount(userID); err != nil {
		return fmt.Errorf("increment search count for user %d: %w", userID, err)
	}
	return nil
}

// AdmitFilterCreate checks the per-tier filter-count ceiling.
func (g *Guard) AdmitFilterCreate(userID uint) error {
	user, err := g.store.GetUser(userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}

	max := models.LimitsForTier(user.SubscriptionTier).MaxFilters
	if max < 0 {
		return nil // unlimited
	}

	count, err := g.store.CountFilters(userID)
	if err != nil {
		return fmt.Errorf("count filters for user %d: %w", userID, err)
	}
	if count >= int64(max) {
		return ErrFilterLimitReached
	}
	return nil
}

// NextReset returns the next local midnight after now, the moment daily
// quotas reset and deferred scheduled scans become due again.
func NextReset(now time.Time) time.Time {
	local := now.Local()
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local).AddDate(0, 0, 1)
}

func sameLocalDay(a, b time.Time) bool {
	al, bl := a.Local(), b.Local()
	return al.Year() == bl.Year() && al.YearDay() == bl.YearDay()
}

func dateOnly(t time.Time) time.Time {
	local := t.Local()
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local)
}
