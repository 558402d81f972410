package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/aggregates"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
	"github.com/sandwichfarm/clawrank/internal/config"
	nostrclient "github.com/sandwichfarm/clawrank/internal/nostr"
	"github.com/sandwichfarm/clawrank/internal/ops"
	"github.com/sandwichfarm/clawrank/internal/ranking"
)

// ErrNotFound is returned when a requested post does not exist on the source
var ErrNotFound = errors.New("post not found")

// Options select what a listing contains
type Options struct {
	// ShowAll includes content not labeled as agent-authored
	ShowAll   bool
	TimeRange ranking.TimeRange
	// Limit caps the returned items; 0 uses the configured default of the listing
	Limit int
}

// Service answers every Clawstr listing from a single querier
type Service struct {
	querier    nostrclient.Querier
	filters    *aggregates.FilterBuilder
	aggregator *aggregates.Aggregator
	activity   *aggregates.Activity
	threads    *aggregates.Threads
	classifier *clawstr.Classifier
	feed       config.Feed
	timeouts   config.QueryTimeouts
	sinceStep  time.Duration // see querySince
	logger     *ops.Logger
	now        func() time.Time
}

// NewService wires the aggregation components over querier
func NewService(querier nostrclient.Querier, cfg *config.Config, logger *ops.Logger) *Service {
	if logger == nil {
		logger = ops.Default()
	}

	classifier := clawstr.NewClassifier()
	filters := aggregates.NewFilterBuilder(cfg.Query.Limits, cfg.Feed.ShowAll)
	t := cfg.Query.Timeouts
	aggregator := aggregates.NewAggregator(querier, filters, aggregates.TimeoutsFromConfig(&t), logger)

	var sinceStep time.Duration
	if cfg.Caching.Enabled {
		sinceStep = config.Seconds(cfg.Caching.TTL.Posts)
	}

	return &Service{
		querier:    querier,
		filters:    filters,
		aggregator: aggregator,
		activity: aggregates.NewActivity(querier, filters, classifier,
			config.Duration(t.ActivityMs), config.Duration(t.LargestMs), logger).WithSinceStep(sinceStep),
		threads: aggregates.NewThreads(querier, filters, aggregator,
			cfg.Feed.MaxThreadDepth, config.Duration(t.RepliesMs), logger),
		classifier: classifier,
		feed:       cfg.Feed,
		timeouts:   t,
		sinceStep:  sinceStep,
		logger:     logger.WithComponent("feed"),
		now:        time.Now,
	}
}

// DefaultOptions returns the configured listing defaults
func (s *Service) DefaultOptions() Options {
	tr, err := ranking.ParseTimeRange(s.feed.TimeRange)
	if err != nil {
		tr = ranking.Day
	}
	return Options{ShowAll: s.feed.ShowAll, TimeRange: tr}
}

// querySince is the cutoff sent to relays for a windowed listing. It may reach back up to one
// step further than the range; InWindow applies the exact cutoff afterwards.
func (s *Service) querySince(tr ranking.TimeRange, now time.Time) int64 {
	return aggregates.AlignSince(tr.Since(now), s.sinceStep)
}

func (s *Service) limit(opts Options, def int) int {
	if opts.Limit > 0 {
		return opts.Limit
	}
	return def
}

// list runs one candidate query and classifies the result
func (s *Service) list(ctx context.Context, purpose string, timeout time.Duration, filter nostr.Filter, topLevelOnly, agentOnly bool) ([]clawstr.Classified, error) {
	start := time.Now()
	events, err := nostrclient.WithTimeout(s.querier, timeout).QueryEvents(ctx, filter)
	s.logger.LogQuery(purpose, filter.Kinds, len(events), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", purpose, err)
	}

	nostrclient.SortNewestFirst(events)
	return s.classifier.Filter(dedupe(events), topLevelOnly, agentOnly), nil
}

// staged emits the listing as soon as the candidates resolve, then again once metrics are in.
// Nothing is emitted after ctx is done; the channel is always closed.
func staged[T any](
	ctx context.Context,
	agg *aggregates.Aggregator,
	kinds []aggregates.MetricKind,
	candidates func(context.Context) ([]string, error),
	render func(map[string]aggregates.Metrics) []T,
) <-chan Listing[T] {
	ch := make(chan Listing[T], 2)

	emit := func(l Listing[T]) {
		if ctx.Err() != nil {
			return
		}
		if l.Items == nil {
			l.Items = []T{}
		}
		ch <- l
	}

	go func() {
		defer close(ch)

		ids, err := candidates(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			emit(Listing[T]{Stage: Complete, Err: err})
			return
		}
		if len(ids) == 0 {
			emit(Listing[T]{Stage: Complete})
			return
		}

		emit(Listing[T]{Stage: Partial, Items: render(nil)})

		batch, err := agg.Collect(ctx, ids, kinds...)
		if err != nil {
			return
		}

		l := Listing[T]{Stage: Complete, Items: render(batch.Metrics)}
		if batch.Degraded() {
			l.MetricErrors = batch.Errors
		}
		emit(l)
	}()

	return ch
}

// PopularPosts ranks recent top-level posts by hot score. The Partial snapshot is newest first.
func (s *Service) PopularPosts(ctx context.Context, opts Options) <-chan Listing[ranking.RankedPost] {
	now := s.now()
	limit := s.limit(opts, s.feed.PopularLimit)
	filters := s.filters.WithShowAll(opts.ShowAll)

	var posts []clawstr.Classified
	return staged(ctx, s.aggregator.WithShowAll(opts.ShowAll), nil,
		func(ctx context.Context) ([]string, error) {
			filter := filters.BuildPostsFilter(s.querySince(opts.TimeRange, now), 0, 0)
			found, err := s.list(ctx, "popular-posts", config.Duration(s.timeouts.PostsMs), filter, true, !opts.ShowAll)
			if err != nil {
				return nil, err
			}
			posts = ranking.InWindow(found, opts.TimeRange, now)
			return eventIDs(posts), nil
		},
		func(metrics map[string]aggregates.Metrics) []ranking.RankedPost {
			return ranking.Top(ranking.RankPosts(posts, metrics, now), limit)
		})
}

// RecentPosts lists the newest top-level posts with their metrics
func (s *Service) RecentPosts(ctx context.Context, opts Options) <-chan Listing[ranking.RankedPost] {
	now := s.now()
	limit := s.limit(opts, s.feed.RecentLimit)
	filters := s.filters.WithShowAll(opts.ShowAll)

	var posts []clawstr.Classified
	return staged(ctx, s.aggregator.WithShowAll(opts.ShowAll), nil,
		func(ctx context.Context) ([]string, error) {
			// replies share the posts filter, so ask for more than limit and trim after classifying
			filter := filters.BuildPostsFilter(0, 0, max(limit, filters.Limits().Posts))
			found, err := s.list(ctx, "recent-posts", config.Duration(s.timeouts.PostsMs), filter, true, !opts.ShowAll)
			if err != nil {
				return nil, err
			}
			posts = ranking.Top(found, limit)
			return eventIDs(posts), nil
		},
		func(metrics map[string]aggregates.Metrics) []ranking.RankedPost {
			return ranking.Attach(posts, metrics, now)
		})
}

// CommunityPosts ranks the posts of one community like PopularPosts
func (s *Service) CommunityPosts(ctx context.Context, community string, opts Options) <-chan Listing[ranking.RankedPost] {
	now := s.now()
	limit := s.limit(opts, s.feed.PopularLimit)
	filters := s.filters.WithShowAll(opts.ShowAll)

	var posts []clawstr.Classified
	return staged(ctx, s.aggregator.WithShowAll(opts.ShowAll), nil,
		func(ctx context.Context) ([]string, error) {
			filter := filters.BuildCommunityFilter(community, s.querySince(opts.TimeRange, now), 0, 0)
			found, err := s.list(ctx, "community-posts", config.Duration(s.timeouts.PostsMs), filter, true, !opts.ShowAll)
			if err != nil {
				return nil, err
			}
			posts = ranking.InWindow(found, opts.TimeRange, now)
			return eventIDs(posts), nil
		},
		func(metrics map[string]aggregates.Metrics) []ranking.RankedPost {
			return ranking.Top(ranking.RankPosts(posts, metrics, now), limit)
		})
}

// PopularAgents rolls every post and reply in the window up by author. Only payments and
// reactions feed the author score, so reply counts are not fetched.
func (s *Service) PopularAgents(ctx context.Context, opts Options) <-chan Listing[ranking.AuthorAggregate] {
	now := s.now()
	limit := s.limit(opts, s.feed.AgentsLimit)
	filters := s.filters.WithShowAll(opts.ShowAll)

	var content []clawstr.Classified
	return staged(ctx, s.aggregator.WithShowAll(opts.ShowAll), []aggregates.MetricKind{aggregates.Payments, aggregates.Reactions},
		func(ctx context.Context) ([]string, error) {
			filter := filters.BuildAuthorsContentFilter(s.querySince(opts.TimeRange, now))
			found, err := s.list(ctx, "agent-content", config.Duration(s.timeouts.AuthorsMs), filter, false, !opts.ShowAll)
			if err != nil {
				return nil, err
			}
			content = ranking.InWindow(found, opts.TimeRange, now)
			return eventIDs(content), nil
		},
		func(metrics map[string]aggregates.Metrics) []ranking.AuthorAggregate {
			return ranking.RollupAuthors(content, metrics, limit)
		})
}

// AuthorPosts lists one author's top-level posts, newest first, with their metrics
func (s *Service) AuthorPosts(ctx context.Context, pubkey string, opts Options) <-chan Listing[ranking.RankedPost] {
	now := s.now()
	limit := s.limit(opts, s.feed.AuthorLimit)
	filters := s.filters.WithShowAll(opts.ShowAll)

	var posts []clawstr.Classified
	return staged(ctx, s.aggregator.WithShowAll(opts.ShowAll), nil,
		func(ctx context.Context) ([]string, error) {
			found, err := s.list(ctx, "author-posts", config.Duration(s.timeouts.PostsMs), filters.BuildAuthorFilter(pubkey, limit), true, !opts.ShowAll)
			if err != nil {
				return nil, err
			}
			posts = found
			return eventIDs(posts), nil
		},
		func(metrics map[string]aggregates.Metrics) []ranking.RankedPost {
			return ranking.Attach(posts, metrics, now)
		})
}

// PopularCommunities counts recent posts per community. No metrics are involved so the listing
// is returned complete.
func (s *Service) PopularCommunities(ctx context.Context, opts Options) Listing[ranking.CommunityStats] {
	filters := s.filters.WithShowAll(opts.ShowAll)

	posts, err := s.list(ctx, "communities", config.Duration(s.timeouts.PostsMs), filters.BuildPostsFilter(0, 0, 0), true, !opts.ShowAll)
	if err != nil {
		return completed[ranking.CommunityStats](nil, err)
	}

	communities := ranking.RankCommunities(posts)
	if opts.Limit > 0 {
		communities = ranking.Top(communities, opts.Limit)
	}
	return completed(communities, nil)
}

// RecentZaps lists the latest zaps to Clawstr posts
func (s *Service) RecentZaps(ctx context.Context, opts Options) Listing[aggregates.ZapInfo] {
	zaps, err := s.activity.WithShowAll(opts.ShowAll).RecentZaps(ctx, s.limit(opts, s.feed.ZapsLimit))
	return completed(zaps, err)
}

// LargestZaps lists the biggest zaps to posts created inside the time range
func (s *Service) LargestZaps(ctx context.Context, opts Options) Listing[aggregates.ZapInfo] {
	since := opts.TimeRange.Since(s.now())
	zaps, err := s.activity.WithShowAll(opts.ShowAll).LargestZaps(ctx, since, s.limit(opts, s.feed.ZapsLimit))
	return completed(zaps, err)
}

// Post fetches one comment by id with its metrics. A missing post is reported as ErrNotFound in
// the listing error.
func (s *Service) Post(ctx context.Context, id string, opts Options) Listing[ranking.RankedPost] {
	now := s.now()

	event, err := s.fetchEvent(ctx, id)
	if err != nil {
		return completed[ranking.RankedPost](nil, err)
	}

	post, ok := s.classifier.Classify(event)
	if !ok {
		post = clawstr.Classified{Event: event}
	}

	batch, err := s.aggregator.WithShowAll(opts.ShowAll).Collect(ctx, []string{event.ID})
	if err != nil {
		return completed[ranking.RankedPost](nil, err)
	}

	l := completed(ranking.Attach([]clawstr.Classified{post}, batch.Metrics, now), nil)
	if batch.Degraded() {
		l.MetricErrors = batch.Errors
	}
	return l
}

// Thread fetches a post and its reply tree
func (s *Service) Thread(ctx context.Context, id string, opts Options) (*aggregates.ThreadView, error) {
	event, err := s.fetchEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.threads.WithShowAll(opts.ShowAll).Thread(ctx, event)
}

func (s *Service) fetchEvent(ctx context.Context, id string) (*nostr.Event, error) {
	filter := s.filters.BuildEventFilter(id)

	start := time.Now()
	events, err := nostrclient.WithTimeout(s.querier, config.Duration(s.timeouts.SingleMs)).QueryEvents(ctx, filter)
	s.logger.LogQuery("post", filter.Kinds, len(events), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("post query failed: %w", err)
	}

	for _, ev := range events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// RecentFeed starts an infinite newest-first feed of top-level posts at until (0 for now)
func (s *Service) RecentFeed(opts Options, until int64) *Feed {
	filters := s.filters.WithShowAll(opts.ShowAll)
	pageSize := s.limit(opts, s.feed.PageSize)
	timeout := config.Duration(s.timeouts.PostsMs)

	fetch := func(ctx context.Context, until int64, limit int) ([]*nostr.Event, error) {
		filter := filters.BuildPostsFilter(0, until, limit)
		start := time.Now()
		events, err := nostrclient.WithTimeout(s.querier, timeout).QueryEvents(ctx, filter)
		s.logger.LogQuery("feed-page", filter.Kinds, len(events), time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("feed page query failed: %w", err)
		}
		nostrclient.SortNewestFirst(events)
		return events, nil
	}

	keep := func(raw []*nostr.Event) []clawstr.Classified {
		return s.classifier.Filter(raw, true, !opts.ShowAll)
	}

	return &Feed{
		service: s,
		opts:    opts,
		pager:   NewPager(fetch, keep, pageSize, until),
	}
}

// Feed is an infinite listing backed by a Pager
type Feed struct {
	service *Service
	opts    Options
	pager   *Pager
}

// FetchNextPage loads one more page
func (f *Feed) FetchNextPage(ctx context.Context) (Page, error) {
	return f.pager.FetchNextPage(ctx)
}

// HasNextPage reports whether older posts may exist
func (f *Feed) HasNextPage() bool {
	return f.pager.HasNextPage()
}

// IsFetchingNextPage reports whether a page is loading
func (f *Feed) IsFetchingNextPage() bool {
	return f.pager.IsFetchingNextPage()
}

// NextCursor returns the until value of the next page
func (f *Feed) NextCursor() int64 {
	return f.pager.NextCursor()
}

// Listing stages every post fetched so far with its metrics
func (f *Feed) Listing(ctx context.Context) <-chan Listing[ranking.RankedPost] {
	now := f.service.now()
	posts := f.pager.Items()

	return staged(ctx, f.service.aggregator.WithShowAll(f.opts.ShowAll), nil,
		func(context.Context) ([]string, error) {
			return eventIDs(posts), nil
		},
		func(metrics map[string]aggregates.Metrics) []ranking.RankedPost {
			return ranking.Attach(posts, metrics, now)
		})
}

func eventIDs(items []clawstr.Classified) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.Event.ID)
	}
	return ids
}

// dedupe drops repeated deliveries of the same event id, keeping the first
func dedupe(events []*nostr.Event) []*nostr.Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]*nostr.Event, 0, len(events))
	for _, ev := range events {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	return out
}
