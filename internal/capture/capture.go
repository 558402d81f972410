// Package capture copies Clawstr content and its engagement from relays into a JSONL snapshot that
// the snapshot source can serve offline.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/aggregates"
	"github.com/sandwichfarm/clawrank/internal/config"
	"github.com/sandwichfarm/clawrank/internal/feed"
	nostrclient "github.com/sandwichfarm/clawrank/internal/nostr"
	"github.com/sandwichfarm/clawrank/internal/ops"
)

const (
	defaultPageSize  = 200
	defaultBatchSize = 100
	defaultWorkers   = 4
	kindProfile      = 0
)

// Options bound one capture run
type Options struct {
	// Since is the oldest created_at captured; 0 walks until the source runs dry or MaxPages is hit
	Since    int64
	ShowAll  bool
	PageSize int
	// MaxPages caps the content walk; 0 means no cap
	MaxPages int
	// BatchSize is the number of ids per engagement query
	BatchSize int
	Workers   int
	// Timeout bounds each query
	Timeout time.Duration
}

// Stats summarizes a capture run
type Stats struct {
	Pages      int
	Content    int
	Engagement int
	Profiles   int
	Duplicates int
	Failed     int
}

// Written returns the number of events written
func (s Stats) Written() int {
	return s.Content + s.Engagement + s.Profiles
}

// Capturer walks the content feed, then fetches receipts, reactions and profiles for what it found
type Capturer struct {
	querier nostrclient.Querier
	limits  config.QueryLimits
	logger  *ops.Logger
}

// New creates a capturer reading from querier
func New(querier nostrclient.Querier, limits config.QueryLimits, logger *ops.Logger) *Capturer {
	if logger == nil {
		logger = ops.Default()
	}
	return &Capturer{
		querier: querier,
		limits:  limits,
		logger:  logger.WithComponent("capture"),
	}
}

// sink writes each event once
type sink struct {
	mu    sync.Mutex
	enc   *json.Encoder
	seen  map[string]struct{}
	stats *Stats
}

func (s *sink) write(ev *nostr.Event, counter *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[ev.ID]; dup {
		s.stats.Duplicates++
		return nil
	}
	if err := s.enc.Encode(ev); err != nil {
		return fmt.Errorf("failed to write event %s: %w", ev.ID, err)
	}
	s.seen[ev.ID] = struct{}{}
	*counter++
	return nil
}

// Run captures into w. A failed content page ends the run with an error; failed engagement or
// profile batches are counted in Stats.Failed and skipped.
func (c *Capturer) Run(ctx context.Context, w io.Writer, opts Options) (Stats, error) {
	opts = withDefaults(opts)
	stats := Stats{}
	out := &sink{enc: json.NewEncoder(w), seen: make(map[string]struct{}), stats: &stats}
	filters := aggregates.NewFilterBuilder(c.limits, opts.ShowAll)
	querier := nostrclient.WithTimeout(c.querier, opts.Timeout)
	start := time.Now()

	ids, authors, err := c.walkContent(ctx, querier, filters, out, opts)
	if err != nil {
		return stats, err
	}

	jobs := make([]nostr.Filter, 0)
	for _, batch := range chunk(ids, opts.BatchSize) {
		jobs = append(jobs, filters.BuildPaymentsFilter(batch), filters.BuildReactionsFilter(batch))
	}
	for _, batch := range chunk(authors, opts.BatchSize) {
		jobs = append(jobs, nostr.Filter{Kinds: []int{kindProfile}, Authors: batch, Limit: len(batch)})
	}

	c.runJobs(ctx, querier, jobs, out, opts.Workers)

	c.logger.Info("capture finished",
		"pages", stats.Pages,
		"content", stats.Content,
		"engagement", stats.Engagement,
		"profiles", stats.Profiles,
		"duplicates", stats.Duplicates,
		"failed_batches", stats.Failed,
		"duration_ms", time.Since(start).Milliseconds())

	return stats, ctx.Err()
}

// walkContent pages newest first until the window, the page cap or the source is exhausted
func (c *Capturer) walkContent(ctx context.Context, querier nostrclient.Querier, filters *aggregates.FilterBuilder, out *sink, opts Options) ([]string, []string, error) {
	ids := make([]string, 0)
	authors := make([]string, 0)
	seenAuthors := make(map[string]struct{})

	var until int64
	for opts.MaxPages == 0 || out.stats.Pages < opts.MaxPages {
		filter := filters.BuildContentFilter(opts.Since, until, opts.PageSize)

		start := time.Now()
		raw, err := querier.QueryEvents(ctx, filter)
		c.logger.LogQuery("capture-page", filter.Kinds, len(raw), time.Since(start), err)
		if err != nil {
			return nil, nil, fmt.Errorf("content page at %d failed: %w", until, err)
		}
		out.stats.Pages++

		for _, ev := range raw {
			if !filters.Accepts(ev) {
				continue
			}
			if _, dup := out.seen[ev.ID]; !dup {
				ids = append(ids, ev.ID)
			}
			if err := out.write(ev, &out.stats.Content); err != nil {
				return nil, nil, err
			}
			if _, ok := seenAuthors[ev.PubKey]; !ok {
				seenAuthors[ev.PubKey] = struct{}{}
				authors = append(authors, ev.PubKey)
			}
		}

		next, ok := feed.NextCursor(raw, until)
		if !ok || next < opts.Since {
			break
		}
		until = next
	}

	return ids, authors, nil
}

// runJobs fans the engagement and profile queries out over a fixed set of workers
func (c *Capturer) runJobs(ctx context.Context, querier nostrclient.Querier, jobs []nostr.Filter, out *sink, workers int) {
	ch := make(chan nostr.Filter)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for filter := range ch {
				start := time.Now()
				events, err := querier.QueryEvents(ctx, filter)
				c.logger.LogQuery("capture-batch", filter.Kinds, len(events), time.Since(start), err)
				if err != nil {
					out.mu.Lock()
					out.stats.Failed++
					out.mu.Unlock()
					continue
				}

				counter := &out.stats.Engagement
				if len(filter.Kinds) == 1 && filter.Kinds[0] == kindProfile {
					counter = &out.stats.Profiles
				}
				for _, ev := range events {
					if err := out.write(ev, counter); err != nil {
						c.logger.Warn("capture write failed", "error", err)
					}
				}
			}
		}()
	}

	for _, job := range jobs {
		select {
		case ch <- job:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(ch)
	wg.Wait()
}

func withDefaults(opts Options) Options {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return opts
}

func chunk(items []string, size int) [][]string {
	out := make([][]string, 0, (len(items)+size-1)/size)
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
