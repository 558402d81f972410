package cache

import (
	"context"
	"slices"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
	"github.com/sandwichfarm/clawrank/internal/config"
	nostrclient "github.com/sandwichfarm/clawrank/internal/nostr"
	"github.com/sandwichfarm/clawrank/internal/ops"
)

// Policy returns how long the result of filter stays fresh
type Policy func(filter nostr.Filter) time.Duration

// Fixed applies the same staleness window to every filter
func Fixed(maxAge time.Duration) Policy {
	return func(nostr.Filter) time.Duration { return maxAge }
}

// PolicyFromConfig picks the staleness window by query shape: lookups by id use the single
// window, metric queries (reactions, receipts, replies to ids) the metrics window, everything
// else the posts window.
func PolicyFromConfig(ttl *config.CacheTTL) Policy {
	single := config.Seconds(ttl.Single)
	metrics := config.Seconds(ttl.Metrics)
	posts := config.Seconds(ttl.Posts)

	return func(filter nostr.Filter) time.Duration {
		switch {
		case len(filter.IDs) > 0:
			return single
		case slices.Contains(filter.Kinds, clawstr.KindReaction),
			slices.Contains(filter.Kinds, clawstr.KindZapReceipt),
			len(filter.Tags["e"]) > 0:
			return metrics
		default:
			return posts
		}
	}
}

type refreshKey struct{}

// WithRefresh marks ctx so that queries made with it skip cached entries and store fresh ones
func WithRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, refreshKey{}, true)
}

func refreshing(ctx context.Context) bool {
	v, _ := ctx.Value(refreshKey{}).(bool)
	return v
}

// Querier serves fresh cached results and falls through to upstream otherwise.
// Only successful upstream results are stored; errors are never cached. When upstream fails a
// stale entry still in the store is served instead.
type Querier struct {
	upstream nostrclient.Querier
	store    Store
	policy   Policy
	logger   *ops.Logger
	now      func() time.Time
}

// NewQuerier wraps upstream with store
func NewQuerier(upstream nostrclient.Querier, store Store, policy Policy, logger *ops.Logger) *Querier {
	if logger == nil {
		logger = ops.Default()
	}
	return &Querier{
		upstream: upstream,
		store:    store,
		policy:   policy,
		logger:   logger.WithComponent("cache"),
		now:      time.Now,
	}
}

// QueryEvents implements nostrclient.Querier
func (q *Querier) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	key := Key(filter)
	maxAge := q.policy(filter)

	var stale Entry
	var found bool
	if maxAge > 0 && !refreshing(ctx) {
		entry, ok, err := q.store.Get(ctx, key)
		if err != nil {
			q.logger.Warn("cache read failed", "key", key, "error", err)
		}
		if ok && entry.Fresh(maxAge, q.now()) {
			q.logger.LogCacheOperation("get", key, true)
			return entry.Events, nil
		}
		q.logger.LogCacheOperation("get", key, false)
		stale, found = entry, ok
	}

	events, err := q.upstream.QueryEvents(ctx, filter)
	if err != nil {
		if found {
			q.logger.Warn("upstream query failed, serving stale entry",
				"key", key,
				"age", q.now().Sub(stale.FetchedAt).String(),
				"error", err)
			return stale.Events, nil
		}
		return nil, err
	}

	if maxAge > 0 {
		entry := Entry{Events: events, FetchedAt: q.now()}
		if err := q.store.Put(ctx, key, entry); err != nil {
			q.logger.Warn("cache write failed", "key", key, "error", err)
		} else {
			q.logger.LogCacheOperation("put", key, false)
		}
	}

	return events, nil
}
