package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

// PushChannel posts notifications to the configured push gateway webhook.
type PushChannel struct {
	webhookURL string
	client     *http.Client
}

func NewPushChannel(webhookURL string, client *http.Client) *PushChannel {
	if client == nil {
		client = &http.Client{}
	}
	return &PushChannel{webhookURL: webhookURL, client: client}
}

func (c *PushChannel) Name() string { return "push" }

type pushPayload struct {
	UserID    uint   `json:"user_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	URL       string `json:"url,omitempty"`
	FilterID  *uint  `json:"filter_id,omitempty"`
	ListingID *uint  `json:"listing_id,omitempty"`
}

func (c *PushChannel) Send(ctx context.Context, user *models.User, msg Message) error {
	if !user.PushEnabled {
		return nil
	}

	payload, err := json.Marshal(pushPayload{
		UserID:    user.ID,
		Title:     msg.Title,
		Body:      msg.Body,
		URL:       msg.URL,
		FilterID:  msg.FilterID,
		ListingID: msg.ListingID,
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("push gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("push gateway status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
