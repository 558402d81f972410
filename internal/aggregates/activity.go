package aggregates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
	nostrclient "github.com/sandwichfarm/clawrank/internal/nostr"
	"github.com/sandwichfarm/clawrank/internal/ops"
)

// Activity answers the zap activity listings. Both listings run in two steps: recent Clawstr
// posts first, then receipts for those posts, so zaps to unrelated content never show up.
type Activity struct {
	querier        nostrclient.Querier
	filters        *FilterBuilder
	classifier     *clawstr.Classifier
	recentTimeout  time.Duration
	largestTimeout time.Duration
	sinceStep      time.Duration
	logger         *ops.Logger
}

// NewActivity creates the zap activity reader
func NewActivity(querier nostrclient.Querier, filters *FilterBuilder, classifier *clawstr.Classifier, recentTimeout, largestTimeout time.Duration, logger *ops.Logger) *Activity {
	if logger == nil {
		logger = ops.Default()
	}
	if classifier == nil {
		classifier = clawstr.NewClassifier()
	}
	return &Activity{
		querier:        querier,
		filters:        filters,
		classifier:     classifier,
		recentTimeout:  recentTimeout,
		largestTimeout: largestTimeout,
		logger:         logger.WithComponent("activity"),
	}
}

// WithShowAll returns an Activity sharing the querier with a different agent-only toggle
func (a *Activity) WithShowAll(showAll bool) *Activity {
	if a.filters.ShowAll() == showAll {
		return a
	}
	clone := *a
	clone.filters = a.filters.WithShowAll(showAll)
	return &clone
}

func (a *Activity) query(ctx context.Context, purpose string, timeout time.Duration, filter nostr.Filter) ([]*nostr.Event, error) {
	start := time.Now()
	events, err := nostrclient.WithTimeout(a.querier, timeout).QueryEvents(ctx, filter)
	a.logger.LogQuery(purpose, filter.Kinds, len(events), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", purpose, err)
	}
	return events, nil
}

// WithSinceStep returns an Activity that queries with cutoffs floored to step (see AlignSince)
func (a *Activity) WithSinceStep(step time.Duration) *Activity {
	clone := *a
	clone.sinceStep = step
	return &clone
}

// postIDs returns the ids of valid top-level posts created since the cutoff passing the agent
// toggle
func (a *Activity) postIDs(ctx context.Context, timeout time.Duration, since int64) (map[string]struct{}, []string, error) {
	filter := a.filters.BuildPostsFilter(AlignSince(since, a.sinceStep), 0, a.filters.Limits().Activity)
	posts, err := a.query(ctx, "zap-posts", timeout, filter)
	if err != nil {
		return nil, nil, err
	}

	set := make(map[string]struct{})
	ids := make([]string, 0)
	for _, post := range a.classifier.Filter(posts, true, !a.filters.ShowAll()) {
		if int64(post.Event.CreatedAt) < since {
			continue
		}
		if _, dup := set[post.Event.ID]; dup {
			continue
		}
		set[post.Event.ID] = struct{}{}
		ids = append(ids, post.Event.ID)
	}

	return set, ids, nil
}

// collect parses receipts targeting a known post, skipping zero-amount ones
func collect(receipts []*nostr.Event, posts map[string]struct{}, limit int) []ZapInfo {
	zaps := make([]ZapInfo, 0)
	seen := make(map[string]struct{}, len(receipts))

	for _, receipt := range receipts {
		if limit > 0 && len(zaps) >= limit {
			break
		}
		if _, dup := seen[receipt.ID]; dup {
			continue
		}
		seen[receipt.ID] = struct{}{}

		zap := ParseZap(receipt)
		if _, ok := posts[zap.TargetID]; !ok {
			continue
		}
		if zap.Amount == 0 {
			continue
		}
		zaps = append(zaps, zap)
	}

	return zaps
}

// RecentZaps returns the latest non-zero zaps to Clawstr posts, newest first
func (a *Activity) RecentZaps(ctx context.Context, limit int) ([]ZapInfo, error) {
	posts, ids, err := a.postIDs(ctx, a.recentTimeout, 0)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []ZapInfo{}, nil
	}

	// Extra receipts make up for ones that fail to parse
	receipts, err := a.query(ctx, "recent-zaps", a.recentTimeout, a.filters.BuildReceiptsFilter(ids, 0, limit*3))
	if err != nil {
		return nil, err
	}

	nostrclient.SortNewestFirst(receipts)

	return collect(receipts, posts, limit), nil
}

// LargestZaps returns the biggest non-zero zaps to Clawstr posts created since the cutoff
func (a *Activity) LargestZaps(ctx context.Context, since int64, limit int) ([]ZapInfo, error) {
	posts, ids, err := a.postIDs(ctx, a.largestTimeout, since)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []ZapInfo{}, nil
	}

	receipts, err := a.query(ctx, "largest-zaps", a.largestTimeout, a.filters.BuildReceiptsFilter(ids, AlignSince(since, a.sinceStep), 0))
	if err != nil {
		return nil, err
	}

	nostrclient.SortNewestFirst(receipts)
	zaps := collect(receipts, posts, 0)

	sort.SliceStable(zaps, func(i, j int) bool {
		return zaps[i].Amount > zaps[j].Amount
	})
	if limit > 0 && len(zaps) > limit {
		zaps = zaps[:limit]
	}

	return zaps, nil
}
