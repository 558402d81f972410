package nostr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/config"
)

// ErrNoRelays is returned when a query is issued without any relay to send it to
var ErrNoRelays = errors.New("no relays configured")

// Querier executes one filter and returns the matching events, newest first.
// A query cut short by cancellation or timeout returns an error and no events.
type Querier interface {
	QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
}

// QuerierFunc adapts a function to the Querier interface
type QuerierFunc func(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)

// QueryEvents calls f
func (f QuerierFunc) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	return f(ctx, filter)
}

// Client provides a high-level interface for querying Nostr relays
type Client struct {
	pool        *nostr.SimplePool
	relayConfig *config.Relays
}

// New creates a new Nostr client with the given configuration
func New(ctx context.Context, relayConfig *config.Relays) *Client {
	pool := nostr.NewSimplePool(ctx)
	return &Client{
		pool:        pool,
		relayConfig: relayConfig,
	}
}

// Pool returns the underlying SimplePool for advanced operations
func (c *Client) Pool() *nostr.SimplePool {
	return c.pool
}

// QueryEvents fetches events matching filter from every seed relay and waits for EOSE.
// Results are deduplicated by id, sorted newest first and truncated to filter.Limit.
func (c *Client) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	relays := c.GetSeedRelays()
	if len(relays) == 0 {
		return nil, ErrNoRelays
	}

	return c.FetchEvents(ctx, relays, filter)
}

// FetchEvents fetches events from the given relays matching the filter
func (c *Client) FetchEvents(ctx context.Context, relays []string, filter nostr.Filter) ([]*nostr.Event, error) {
	seen := make(map[string]struct{})
	events := make([]*nostr.Event, 0)

	for relayEvent := range c.pool.FetchMany(ctx, relays, filter) {
		if relayEvent.Event == nil {
			continue
		}
		if _, dup := seen[relayEvent.Event.ID]; dup {
			continue
		}
		seen[relayEvent.Event.ID] = struct{}{}
		events = append(events, relayEvent.Event)
	}

	// The pool closes the channel on cancellation too; what arrived so far is incomplete
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query interrupted: %w", err)
	}

	SortNewestFirst(events)
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}

	return events, nil
}

// FetchEvent fetches a single event by ID from the seed relays
func (c *Client) FetchEvent(ctx context.Context, eventID string) (*nostr.Event, error) {
	events, err := c.QueryEvents(ctx, nostr.Filter{IDs: []string{eventID}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("event not found: %s", eventID)
	}

	return events[0], nil
}

// Close closes all relay connections
func (c *Client) Close() {
	c.pool.Close("client shutting down")
}

// GetSeedRelays returns the configured seed relays
func (c *Client) GetSeedRelays() []string {
	if c.relayConfig == nil {
		return []string{}
	}
	return c.relayConfig.Seeds
}

// GetDefaultTimeout returns the configured timeout duration
func (c *Client) GetDefaultTimeout() time.Duration {
	if c.relayConfig == nil || c.relayConfig.Policy.ConnectTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.relayConfig.Policy.ConnectTimeoutMs) * time.Millisecond
}

// WithTimeout bounds every query issued through q by d, in addition to the caller's context.
// Whichever fires first ends the query.
func WithTimeout(q Querier, d time.Duration) Querier {
	if d <= 0 {
		return q
	}
	return QuerierFunc(func(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return q.QueryEvents(ctx, filter)
	})
}

// SortNewestFirst orders events by created_at descending, then id ascending
func SortNewestFirst(events []*nostr.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
}
