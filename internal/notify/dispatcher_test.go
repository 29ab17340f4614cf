package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhammetEminGerim/autosniper/internal/diff"
	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

type recordingChannel struct {
	name string
	fail bool

	mu   sync.Mutex
	sent []Message
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(ctx context.Context, user *models.User, msg Message) error {
	if c.fail {
		return errors.New("delivery failed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *recordingChannel) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

type fakeFavorites struct {
	favorited map[uint]bool
}

func (f *fakeFavorites) IsFavorite(userID, listingID uint) (bool, error) {
	return f.favorited[listingID], nil
}

func testUser() *models.User {
	return &models.User{ID: 1, TelegramEnabled: true, PushEnabled: true}
}

func TestScanCompleted_AggregatesNewListings(t *testing.T) {
	ch := &recordingChannel{name: "test"}
	d := NewDispatcher([]Channel{ch}, &fakeFavorites{}, time.Second, 0, 0, nil)

	filter := &models.Filter{ID: 3, Name: "Clio altı yaş"}
	res := &diff.Result{New: []*models.Listing{
		{Title: "a", Price: 1}, {Title: "b", Price: 2}, {Title: "c", Price: 3},
		{Title: "d", Price: 4}, {Title: "e", Price: 5},
	}}

	d.ScanCompleted(context.Background(), testUser(), filter, res)

	// Five new listings produce exactly one aggregated message.
	msgs := ch.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Title, "5 new listings")
	require.NotNil(t, msgs[0].FilterID)
	assert.Equal(t, uint(3), *msgs[0].FilterID)
}

func TestScanCompleted_PriceDropOnlyForFavorites(t *testing.T) {
	ch := &recordingChannel{name: "test"}
	favs := &fakeFavorites{favorited: map[uint]bool{10: true}}
	d := NewDispatcher([]Channel{ch}, favs, time.Second, 0, 0, nil)

	filter := &models.Filter{ID: 3, Name: "f"}
	res := &diff.Result{Changed: []diff.PriceChange{
		{Listing: &models.Listing{ID: 10, Title: "fav"}, OldPrice: 100, NewPrice: 90, Direction: "down", Percentage: 10},
		{Listing: &models.Listing{ID: 11, Title: "other"}, OldPrice: 100, NewPrice: 90, Direction: "down", Percentage: 10},
	}}

	d.ScanCompleted(context.Background(), testUser(), filter, res)

	msgs := ch.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Title, "fav")
}

func TestPriceDrop_IgnoresIncreases(t *testing.T) {
	ch := &recordingChannel{name: "test"}
	d := NewDispatcher([]Channel{ch}, &fakeFavorites{}, time.Second, 0, 0, nil)

	d.PriceDrop(context.Background(), testUser(), diff.PriceChange{
		Listing: &models.Listing{ID: 10}, OldPrice: 100, NewPrice: 110, Direction: "up", Percentage: -10,
	})

	assert.Empty(t, ch.messages())
}

func TestPriceDrop_SignificanceThreshold(t *testing.T) {
	ch := &recordingChannel{name: "test"}
	d := NewDispatcher([]Channel{ch}, &fakeFavorites{}, time.Second, 0, 5.0, nil)

	d.PriceDrop(context.Background(), testUser(), diff.PriceChange{
		Listing: &models.Listing{ID: 10}, OldPrice: 100, NewPrice: 98, Direction: "down", Percentage: 2,
	})
	assert.Empty(t, ch.messages())

	d.PriceDrop(context.Background(), testUser(), diff.PriceChange{
		Listing: &models.Listing{ID: 10}, OldPrice: 100, NewPrice: 90, Direction: "down", Percentage: 10,
	})
	assert.Len(t, ch.messages(), 1)
}

func TestFanOut_ChannelFailureIsIsolated(t *testing.T) {
	failing := &recordingChannel{name: "bot", fail: true}
	push := &recordingChannel{name: "push"}
	feed := &recordingChannel{name: "feed"}
	d := NewDispatcher([]Channel{failing, push, feed}, &fakeFavorites{}, time.Second, 1, 0, nil)

	filter := &models.Filter{ID: 1, Name: "f"}
	res := &diff.Result{New: []*models.Listing{{Title: "a", Price: 1}}}

	d.ScanCompleted(context.Background(), testUser(), filter, res)

	// The failing channel must not block the others.
	assert.Len(t, push.messages(), 1)
	assert.Len(t, feed.messages(), 1)
	assert.Empty(t, failing.messages())
}

func TestScanCompleted_NothingToSend(t *testing.T) {
	ch := &recordingChannel{name: "test"}
	d := NewDispatcher([]Channel{ch}, &fakeFavorites{}, time.Second, 0, 0, nil)

	d.ScanCompleted(context.Background(), testUser(), &models.Filter{ID: 1}, &diff.Result{UnchangedCount: 12})

	assert.Empty(t, ch.messages())
}
