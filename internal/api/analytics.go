package api

import (
	"context"
	"fmt"
	"net/url"
)

// ListFeeds fetches all analytics feeds.
func (c *Client) ListFeeds(ctx context.Context) ([]Feed, error) {
	ctx, cancel := withPaginationTimeout(ctx)
	defer cancel()

	var all []Feed
	next := c.endpoint("/analytics/feeds", nil)
	for next != "" {
		var resp FeedsResponse
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("list feeds: %w", err)
		}
		all = append(all, resp.Data...)
		next = nextLink(resp.Links)
	}
	return all, nil
}

// ListSubscriptions fetches analytics subscriptions, optionally for one feed.
func (c *Client) ListSubscriptions(ctx context.Context, feedID string) ([]Subscription, error) {
	ctx, cancel := withPaginationTimeout(ctx)
	defer cancel()

	query := url.Values{}
	if feedID != "" {
		query.Set("feedID", feedID)
	}

	var all []Subscription
	next := c.endpoint("/analytics/subscriptions", query)
	for next != "" {
		var resp SubscriptionsResponse
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("list subscriptions: %w", err)
		}
		all = append(all, resp.Data...)
		next = nextLink(resp.Links)
	}
	return all, nil
}
