package aggregates

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/config"
	nostrclient "github.com/sandwichfarm/clawrank/internal/nostr"
	"github.com/sandwichfarm/clawrank/internal/ops"
)

// MetricKind names one engagement signal fetched by its own query
type MetricKind string

const (
	Payments  MetricKind = "payments"
	Reactions MetricKind = "reactions"
	Replies   MetricKind = "replies"
)

// AllMetrics is every metric kind, in the order they are reported
var AllMetrics = []MetricKind{Payments, Reactions, Replies}

// Metrics holds the engagement signals of one event
type Metrics struct {
	PaymentTotal int64 `json:"payment_total"` // sats
	PaymentCount int   `json:"payment_count"`
	Upvotes      int   `json:"upvotes"`
	Downvotes    int   `json:"downvotes"`
	ReplyCount   int   `json:"reply_count"`
}

// Score returns upvotes minus downvotes
func (m Metrics) Score() int {
	return m.Upvotes - m.Downvotes
}

// Batch is the outcome of one aggregation pass
type Batch struct {
	// Metrics has an entry for every requested id
	Metrics map[string]Metrics
	// Errors holds the metric kinds that failed; their fields are zero for every id
	Errors map[MetricKind]error
}

// Get returns the metrics of id, zero if it was not requested
func (b Batch) Get(id string) Metrics {
	return b.Metrics[id]
}

// Degraded reports whether any metric kind failed
func (b Batch) Degraded() bool {
	return len(b.Errors) > 0
}

// FailedKinds returns the failed metric kinds in a stable order
func (b Batch) FailedKinds() []string {
	kinds := make([]string, 0, len(b.Errors))
	for kind := range b.Errors {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	return kinds
}

// Timeouts bounds each metric query
type Timeouts struct {
	Payments  time.Duration
	Reactions time.Duration
	Replies   time.Duration
}

// Aggregator fetches engagement metrics for a set of events with one query per metric kind
type Aggregator struct {
	querier  nostrclient.Querier
	filters  *FilterBuilder
	timeouts Timeouts
	logger   *ops.Logger
}

// NewAggregator creates an aggregator reading from querier
func NewAggregator(querier nostrclient.Querier, filters *FilterBuilder, timeouts Timeouts, logger *ops.Logger) *Aggregator {
	if logger == nil {
		logger = ops.Default()
	}
	return &Aggregator{
		querier:  querier,
		filters:  filters,
		timeouts: timeouts,
		logger:   logger.WithComponent("aggregates"),
	}
}

// TimeoutsFromConfig reads metric query timeouts from configuration
func TimeoutsFromConfig(cfg *config.QueryTimeouts) Timeouts {
	return Timeouts{
		Payments:  config.Duration(cfg.PaymentsMs),
		Reactions: config.Duration(cfg.ReactionsMs),
		Replies:   config.Duration(cfg.RepliesMs),
	}
}

// WithShowAll returns an aggregator sharing the querier with a different agent-only toggle
func (a *Aggregator) WithShowAll(showAll bool) *Aggregator {
	if a.filters.ShowAll() == showAll {
		return a
	}
	clone := *a
	clone.filters = a.filters.WithShowAll(showAll)
	return &clone
}

func (a *Aggregator) query(ctx context.Context, kind MetricKind, timeout time.Duration, filter nostr.Filter) ([]*nostr.Event, error) {
	start := time.Now()

	events, err := nostrclient.WithTimeout(a.querier, timeout).QueryEvents(ctx, filter)

	a.logger.LogQuery(string(kind), filter.Kinds, len(events), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", kind, err)
	}

	return events, nil
}

// Payments sums zap receipts for every id. On error the map is still zero-filled.
func (a *Aggregator) Payments(ctx context.Context, eventIDs []string) (map[string]PaymentTally, error) {
	ids := uniqueIDs(eventIDs)
	if len(ids) == 0 {
		return map[string]PaymentTally{}, nil
	}

	receipts, err := a.query(ctx, Payments, a.timeouts.Payments, a.filters.BuildPaymentsFilter(ids))
	if err != nil {
		return TallyPayments(ids, nil), err
	}

	return TallyPayments(ids, receipts), nil
}

// Reactions counts up and down votes for every id. On error the map is still zero-filled.
func (a *Aggregator) Reactions(ctx context.Context, eventIDs []string) (map[string]VoteTally, error) {
	ids := uniqueIDs(eventIDs)
	if len(ids) == 0 {
		return map[string]VoteTally{}, nil
	}

	reactions, err := a.query(ctx, Reactions, a.timeouts.Reactions, a.filters.BuildReactionsFilter(ids))
	if err != nil {
		return TallyReactions(ids, nil), err
	}

	return TallyReactions(ids, reactions), nil
}

// ReplyCounts counts direct replies for every id. On error the map is still zero-filled.
func (a *Aggregator) ReplyCounts(ctx context.Context, eventIDs []string) (map[string]int, error) {
	ids := uniqueIDs(eventIDs)
	if len(ids) == 0 {
		return map[string]int{}, nil
	}

	replies, err := a.query(ctx, Replies, a.timeouts.Replies, a.filters.BuildRepliesFilter(ids))
	if err != nil {
		return TallyReplies(ids, nil, nil), err
	}

	return TallyReplies(ids, replies, a.filters.Accepts), nil
}

// Collect runs the requested metric queries concurrently and merges them. With no kinds given
// all three are fetched.
//
// A failing kind is zeroed for every id and reported in Batch.Errors. If ctx itself is done
// before every query settles, Collect returns ctx.Err() and no batch.
func (a *Aggregator) Collect(ctx context.Context, eventIDs []string, kinds ...MetricKind) (Batch, error) {
	if len(kinds) == 0 {
		kinds = AllMetrics
	}

	ids := uniqueIDs(eventIDs)
	batch := Batch{
		Metrics: make(map[string]Metrics, len(ids)),
		Errors:  make(map[MetricKind]error),
	}
	for _, id := range ids {
		batch.Metrics[id] = Metrics{}
	}
	if len(ids) == 0 {
		return batch, nil
	}

	start := time.Now()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		payments  map[string]PaymentTally
		votes     map[string]VoteTally
		replies   map[string]int
		collected = make(map[MetricKind]error)
	)

	record := func(kind MetricKind, err error) {
		mu.Lock()
		defer mu.Unlock()
		collected[kind] = err
	}

	launched := make(map[MetricKind]bool, len(kinds))
	for _, kind := range kinds {
		if launched[kind] {
			continue
		}
		launched[kind] = true

		wg.Add(1)
		go func(kind MetricKind) {
			defer wg.Done()

			var err error
			switch kind {
			case Payments:
				payments, err = a.Payments(ctx, ids)
			case Reactions:
				votes, err = a.Reactions(ctx, ids)
			case Replies:
				replies, err = a.ReplyCounts(ctx, ids)
			default:
				err = fmt.Errorf("unknown metric kind: %s", kind)
			}
			record(kind, err)
		}(kind)
	}

	wg.Wait()

	// Results gathered under a cancelled request are never merged
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}

	for kind, err := range collected {
		if err != nil {
			batch.Errors[kind] = err
		}
	}

	for _, id := range ids {
		m := batch.Metrics[id]
		if batch.Errors[Payments] == nil {
			m.PaymentTotal = payments[id].Total
			m.PaymentCount = payments[id].Count
		}
		if batch.Errors[Reactions] == nil {
			m.Upvotes = votes[id].Upvotes
			m.Downvotes = votes[id].Downvotes
		}
		if batch.Errors[Replies] == nil {
			m.ReplyCount = replies[id]
		}
		batch.Metrics[id] = m
	}

	a.logger.LogAggregate(len(ids), batch.FailedKinds(), time.Since(start))

	return batch, nil
}

// uniqueIDs drops empty and repeated ids, keeping first occurrences in order
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
