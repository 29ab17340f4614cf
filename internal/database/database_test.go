package database

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

func testDB(t *testing.T) *Database {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := NewDatabase(":memory:", logger)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *Database, tier models.Tier) *models.User {
	t.Helper()
	user := &models.User{
		Email:            string(tier) + "@example.com",
		IsActive:         true,
		SubscriptionTier: tier,
		LastResetDate:    time.Now(),
	}
	require.NoError(t, db.CreateUser(user))
	return user
}

func seedFilter(t *testing.T, db *Database, userID uint) *models.Filter {
	t.Helper()
	minPrice := 100000
	filter := &models.Filter{
		UserID:          userID,
		Name:            "bmw under budget",
		Criteria:        models.Criteria{Brand: "BMW", MinPrice: &minPrice},
		IsActive:        true,
		AutoScanEnabled: true,
	}
	require.NoError(t, db.CreateFilter(filter))
	return filter
}

func seedListing(t *testing.T, db *Database, url string, price float64, seenAt time.Time) *models.Listing {
	t.Helper()
	listing := &models.Listing{
		SourceURL:    url,
		Title:        "2020 BMW 320i",
		Price:        price,
		Year:         2020,
		Brand:        "BMW",
		Model:        "320i",
		FirstSeenAt:  seenAt,
		LastSeenAt:   seenAt,
		PriceHistory: []models.PriceEntry{{Price: price, RecordedAt: seenAt}},
	}
	require.NoError(t, db.InsertListing(listing))
	return listing
}

func TestCreateUser_AppliesTierLimits(t *testing.T) {
	db := testDB(t)

	user := seedUser(t, db, models.TierBasic)

	got, err := db.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 500, got.DailySearchLimit)
	assert.Equal(t, 20, got.MaxFilters)
	assert.Equal(t, 0, got.DailySearchCount)
}

func TestGetUser_NotFound(t *testing.T) {
	db := testDB(t)

	_, err := db.GetUser(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchCountLifecycle(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)

	require.NoError(t, db.IncrementSearchCount(user.ID))
	require.NoError(t, db.IncrementSearchCount(user.ID))

	got, err := db.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.DailySearchCount)

	today := time.Now().Truncate(24 * time.Hour)
	require.NoError(t, db.ResetDailyCount(user.ID, today))

	got, err = db.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.DailySearchCount)
}

func TestResetExpiredDailyCounts(t *testing.T) {
	db := testDB(t)

	stale := seedUser(t, db, models.TierFree)
	fresh := &models.User{Email: "fresh@example.com", SubscriptionTier: models.TierFree}
	require.NoError(t, db.CreateUser(fresh))

	yesterday := time.Now().AddDate(0, 0, -1)
	require.NoError(t, db.GetDB().Model(&models.User{}).Where("id = ?", stale.ID).
		Updates(map[string]interface{}{"daily_search_count": 10, "last_reset_date": yesterday}).Error)
	require.NoError(t, db.IncrementSearchCount(fresh.ID))

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	n, err := db.ResetExpiredDailyCounts(midnight)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := db.GetUser(stale.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.DailySearchCount)

	got, err = db.GetUser(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DailySearchCount, "users reset today must keep their count")
}

func TestFilterCRUD(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)
	filter := seedFilter(t, db, user.ID)

	got, err := db.GetFilter(filter.ID)
	require.NoError(t, err)
	assert.Equal(t, "bmw under budget", got.Name)
	assert.Equal(t, "BMW", got.Criteria.Brand)
	require.NotNil(t, got.Criteria.MinPrice)
	assert.Equal(t, 100000, *got.Criteria.MinPrice)
	assert.Equal(t, models.RunStatusIdle, got.RunStatus)

	got.Name = "renamed"
	require.NoError(t, db.SaveFilter(got))

	count, err := db.CountFilters(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	filters, err := db.ListFilters(user.ID)
	require.NoError(t, err)
	require.Len(t, filters, 1)
	assert.Equal(t, "renamed", filters[0].Name)

	require.NoError(t, db.DeleteFilter(filter.ID))
	_, err = db.GetFilter(filter.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFilter_RemovesMembershipsOnly(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)
	filter := seedFilter(t, db, user.ID)
	listing := seedListing(t, db, "https://www.arabam.com/ilan/1", 500000, time.Now())

	_, err := db.SyncFilterMembership(filter.ID, []uint{listing.ID}, 3, time.Now())
	require.NoError(t, err)

	require.NoError(t, db.DeleteFilter(filter.ID))

	var links int64
	require.NoError(t, db.GetDB().Model(&models.FilterListing{}).Count(&links).Error)
	assert.Equal(t, int64(0), links)

	// The listing itself survives: other filters may reference it.
	_, err = db.GetListing(listing.ID)
	assert.NoError(t, err)
}

func TestDueFilters(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)
	now := time.Now()

	neverScanned := seedFilter(t, db, user.ID)

	past := seedFilter(t, db, user.ID)
	require.NoError(t, db.SetNextScanAt(past.ID, now.Add(-time.Minute)))

	future := seedFilter(t, db, user.ID)
	require.NoError(t, db.SetNextScanAt(future.ID, now.Add(time.Hour)))

	running := seedFilter(t, db, user.ID)
	require.NoError(t, db.SetFilterRunStatus(running.ID, models.RunStatusRunning))

	inactive := seedFilter(t, db, user.ID)
	inactive.IsActive = false
	require.NoError(t, db.SaveFilter(inactive))

	manualOnly := seedFilter(t, db, user.ID)
	manualOnly.AutoScanEnabled = false
	require.NoError(t, db.SaveFilter(manualOnly))

	due, err := db.DueFilters(now)
	require.NoError(t, err)

	ids := make([]uint, 0, len(due))
	for _, f := range due {
		ids = append(ids, f.ID)
	}
	assert.ElementsMatch(t, []uint{neverScanned.ID, past.ID}, ids)
}

func TestCompleteFilterScan(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)
	filter := seedFilter(t, db, user.ID)
	require.NoError(t, db.SetFilterRunStatus(filter.ID, models.RunStatusRunning))

	last := time.Now()
	next := last.Add(30 * time.Minute)
	require.NoError(t, db.CompleteFilterScan(filter.ID, last, next, 4))
	require.NoError(t, db.CompleteFilterScan(filter.ID, last, next, 2))

	got, err := db.GetFilter(filter.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusIdle, got.RunStatus)
	assert.Equal(t, 2, got.TotalScans)
	assert.Equal(t, 6, got.NewListingsFound)
	require.NotNil(t, got.LastScanAt)
	require.NotNil(t, got.NextScanAt)
	assert.WithinDuration(t, next, *got.NextScanAt, time.Second)
}

func TestFailFilterScan(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)
	filter := seedFilter(t, db, user.ID)

	next := time.Now().Add(30 * time.Minute)
	require.NoError(t, db.FailFilterScan(filter.ID, next))

	got, err := db.GetFilter(filter.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.RunStatus)
	require.NotNil(t, got.NextScanAt)
	assert.WithinDuration(t, next, *got.NextScanAt, time.Second)
}

func TestGetListingBySourceURL_AbsentIsNilNil(t *testing.T) {
	db := testDB(t)

	listing, err := db.GetListingBySourceURL("https://www.arabam.com/ilan/404")
	require.NoError(t, err)
	assert.Nil(t, listing)
}

func TestAppendPriceHistory(t *testing.T) {
	db := testDB(t)
	t0 := time.Now().Add(-time.Hour)
	listing := seedListing(t, db, "https://www.arabam.com/ilan/1", 500000, t0)

	t1 := time.Now()
	require.NoError(t, db.AppendPriceHistory(listing.ID, 480000, t1))

	got, err := db.GetListing(listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 480000.0, got.Price)
	assert.Equal(t, 480000.0, got.CurrentPrice())
	require.Len(t, got.PriceHistory, 2, "history is append-only")
	assert.Equal(t, 500000.0, got.PriceHistory[0].Price)
	assert.Equal(t, 480000.0, got.PriceHistory[1].Price)
	assert.WithinDuration(t, t1, got.LastSeenAt, time.Second)
}

func TestTouchListing(t *testing.T) {
	db := testDB(t)
	t0 := time.Now().Add(-time.Hour)
	listing := seedListing(t, db, "https://www.arabam.com/ilan/1", 500000, t0)

	t1 := time.Now()
	require.NoError(t, db.TouchListing(listing.ID, t1))

	got, err := db.GetListing(listing.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, t1, got.LastSeenAt, time.Second)
	assert.Len(t, got.PriceHistory, 1, "touch must not grow the history")
	assert.Equal(t, 500000.0, got.Price)
}

func TestSyncFilterMembership_StaleAfterConsecutiveMisses(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)
	filter := seedFilter(t, db, user.ID)
	listing := seedListing(t, db, "https://www.arabam.com/ilan/1", 500000, time.Now())
	now := time.Now()

	marked, err := db.SyncFilterMembership(filter.ID, []uint{listing.ID}, 3, now)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)

	// Two misses: still fresh.
	for i := 0; i < 2; i++ {
		marked, err = db.SyncFilterMembership(filter.ID, nil, 3, now)
		require.NoError(t, err)
		assert.Equal(t, 0, marked)
	}

	// Third consecutive miss crosses the threshold.
	marked, err = db.SyncFilterMembership(filter.ID, nil, 3, now)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	listings, err := db.ListListingsForFilter(filter.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, listings, "stale listings leave the filter's result set")

	// A miss after marking does not re-mark.
	marked, err = db.SyncFilterMembership(filter.ID, nil, 3, now)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)
}

func TestSyncFilterMembership_ReappearanceResetsMisses(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)
	filter := seedFilter(t, db, user.ID)
	listing := seedListing(t, db, "https://www.arabam.com/ilan/1", 500000, time.Now())
	now := time.Now()

	_, err := db.SyncFilterMembership(filter.ID, []uint{listing.ID}, 3, now)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = db.SyncFilterMembership(filter.ID, nil, 3, now)
		require.NoError(t, err)
	}

	// Reappears on the third scan: the miss counter resets to zero.
	_, err = db.SyncFilterMembership(filter.ID, []uint{listing.ID}, 3, now)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		marked, err := db.SyncFilterMembership(filter.ID, nil, 3, now)
		require.NoError(t, err)
		assert.Equal(t, 0, marked)
	}

	marked, err := db.SyncFilterMembership(filter.ID, nil, 3, now)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
}

func TestListListingsForFilter_NewestFirst(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)
	filter := seedFilter(t, db, user.ID)

	old := seedListing(t, db, "https://www.arabam.com/ilan/1", 500000, time.Now().Add(-2*time.Hour))
	recent := seedListing(t, db, "https://www.arabam.com/ilan/2", 450000, time.Now())

	_, err := db.SyncFilterMembership(filter.ID, []uint{old.ID, recent.ID}, 3, time.Now())
	require.NoError(t, err)

	listings, err := db.ListListingsForFilter(filter.ID, 0)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, recent.ID, listings[0].ID)
	assert.Equal(t, old.ID, listings[1].ID)

	limited, err := db.ListListingsForFilter(filter.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDeleteListingsNotSeenSince(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)
	filter := seedFilter(t, db, user.ID)

	expired := seedListing(t, db, "https://www.arabam.com/ilan/1", 500000, time.Now().AddDate(0, 0, -40))
	kept := seedListing(t, db, "https://www.arabam.com/ilan/2", 450000, time.Now())

	_, err := db.SyncFilterMembership(filter.ID, []uint{expired.ID, kept.ID}, 3, time.Now())
	require.NoError(t, err)
	require.NoError(t, db.AddFavorite(&models.Favorite{UserID: user.ID, ListingID: expired.ID, PriceWhenAdded: 500000}))

	deleted, err := db.DeleteListingsNotSeenSince(time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = db.GetListing(expired.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetListing(kept.ID)
	assert.NoError(t, err)

	fav, err := db.IsFavorite(user.ID, expired.ID)
	require.NoError(t, err)
	assert.False(t, fav, "favorites of deleted listings must go with them")

	listings, err := db.ListListingsForFilter(filter.ID, 0)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, kept.ID, listings[0].ID)
}

func TestScanJobLifecycle(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)
	filter := seedFilter(t, db, user.ID)

	job := &models.ScanJob{
		FilterID:    filter.ID,
		Manual:      true,
		ScheduledAt: time.Now(),
		StartedAt:   time.Now(),
	}
	require.NoError(t, db.CreateScanJob(job))
	assert.NotZero(t, job.ID)
	assert.Equal(t, models.ScanStatusRunning, job.Status)

	job.FoundCount = 10
	job.NewCount = 3
	job.ChangedCount = 2
	job.UnchangedCount = 5
	require.NoError(t, db.FinishScanJob(job, models.ScanStatusSucceeded, time.Now()))

	jobs, err := db.ListScanJobs(filter.ID, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.ScanStatusSucceeded, jobs[0].Status)
	assert.Equal(t, 3, jobs[0].NewCount)
	assert.NotNil(t, jobs[0].FinishedAt)
}

func TestFavorites(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)
	listing := seedListing(t, db, "https://www.arabam.com/ilan/1", 500000, time.Now())

	require.NoError(t, db.AddFavorite(&models.Favorite{
		UserID:         user.ID,
		ListingID:      listing.ID,
		PriceWhenAdded: 500000,
	}))

	fav, err := db.IsFavorite(user.ID, listing.ID)
	require.NoError(t, err)
	assert.True(t, fav)

	favorites, err := db.ListFavorites(user.ID)
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	require.NotNil(t, favorites[0].Listing, "listing is preloaded")
	assert.Equal(t, listing.SourceURL, favorites[0].Listing.SourceURL)

	checked := time.Now()
	require.NoError(t, db.MarkFavoriteChecked(favorites[0].ID, checked))
	all, err := db.AllFavorites()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].LastCheckedAt)

	require.NoError(t, db.RemoveFavorite(user.ID, listing.ID))
	fav, err = db.IsFavorite(user.ID, listing.ID)
	require.NoError(t, err)
	assert.False(t, fav)
}

func TestNotifications(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)

	require.NoError(t, db.CreateNotification(&models.Notification{
		UserID: user.ID,
		Title:  "3 new listings",
		Body:   "bmw under budget",
	}))
	require.NoError(t, db.CreateNotification(&models.Notification{
		UserID: user.ID,
		Title:  "Price drop",
	}))

	unread, err := db.ListNotifications(user.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	// Newest first.
	assert.Equal(t, "Price drop", unread[0].Title)

	require.NoError(t, db.MarkNotificationRead(unread[0].ID, user.ID, time.Now()))

	unread, err = db.ListNotifications(user.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "3 new listings", unread[0].Title)

	all, err := db.ListNotifications(user.ID, false, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMarkNotificationRead_WrongUser(t *testing.T) {
	db := testDB(t)
	user := seedUser(t, db, models.TierFree)

	require.NoError(t, db.CreateNotification(&models.Notification{UserID: user.ID, Title: "x"}))

	notifications, err := db.ListNotifications(user.ID, false, 0)
	require.NoError(t, err)
	require.Len(t, notifications, 1)

	err = db.MarkNotificationRead(notifications[0].ID, user.ID+1, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}
