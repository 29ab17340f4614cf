package notify

import (
	"context"
	"fmt"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

// FeedStore persists in-app feed entries.
type FeedStore interface {
	CreateNotification(n *models.Notification) error
}

// FeedChannel writes notifications to the persisted in-app feed.
type FeedChannel struct {
	store FeedStore
}

func NewFeedChannel(store FeedStore) *FeedChannel {
	return &FeedChannel{store: store}
}

func (c *FeedChannel) Name() string { return "feed" }

func (c *FeedChannel) Send(ctx context.Context, user *models.User, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := &models.Notification{
		UserID:    user.ID,
		FilterID:  msg.FilterID,
		ListingID: msg.ListingID,
		Title:     msg.Title,
		Body:      msg.Body,
	}
	if err := c.store.CreateNotification(n); err != nil {
		return fmt.Errorf("persist feed entry: %w", err)
	}
	return nil
}
