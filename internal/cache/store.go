package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/config"
)

// Entry is one cached query result
type Entry struct {
	Events    []*nostr.Event `json:"events"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// Fresh reports whether the entry is younger than maxAge at now
func (e Entry) Fresh(maxAge time.Duration, now time.Time) bool {
	return now.Sub(e.FetchedAt) < maxAge
}

// Store persists entries by key
type Store interface {
	// Get returns the entry under key; found is false on a miss
	Get(ctx context.Context, key string) (entry Entry, found bool, err error)
	Put(ctx context.Context, key string, entry Entry) error
	Close() error
}

// New creates the store selected by configuration. ttl is the hard expiry of entries, it should
// be at least the longest staleness window callers will ask for.
func New(ctx context.Context, cfg *config.Caching) (Store, error) {
	ttl := config.Seconds(longestTTL(&cfg.TTL)) * 2

	switch cfg.Engine {
	case "memory":
		return NewMemoryStore(ttl), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisURL, ttl)
	default:
		return nil, fmt.Errorf("unsupported cache engine: %s", cfg.Engine)
	}
}

func longestTTL(ttl *config.CacheTTL) int {
	longest := ttl.Posts
	for _, s := range []int{ttl.Metrics, ttl.Single, ttl.Activity} {
		if s > longest {
			longest = s
		}
	}
	return longest
}
