package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sandwichfarm/clawrank/internal/aggregates"
	"github.com/sandwichfarm/clawrank/internal/cache"
	"github.com/sandwichfarm/clawrank/internal/ops"
)

// ActivityRefresher keeps the live zap feed warm by refetching it on a schedule
type ActivityRefresher struct {
	cron     *cron.Cron
	service  *Service
	opts     Options
	interval time.Duration
	timeout  time.Duration
	logger   *ops.Logger

	mu          sync.RWMutex
	latest      Listing[aggregates.ZapInfo]
	refreshedAt time.Time
	entryID     cron.EntryID
}

// NewActivityRefresher creates a refresher for the listing selected by opts
func NewActivityRefresher(service *Service, opts Options, interval, timeout time.Duration, logger *ops.Logger) *ActivityRefresher {
	if logger == nil {
		logger = ops.Default()
	}
	return &ActivityRefresher{
		cron:     cron.New(),
		service:  service,
		opts:     opts,
		interval: interval,
		timeout:  timeout,
		logger:   logger.WithComponent("activity-refresher"),
	}
}

// Start schedules the refresh job and runs it once right away
func (r *ActivityRefresher) Start(ctx context.Context) error {
	schedule := fmt.Sprintf("@every %s", r.interval)
	id, err := r.cron.AddFunc(schedule, func() {
		r.Refresh(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule activity refresh: %w", err)
	}

	r.mu.Lock()
	r.entryID = id
	r.mu.Unlock()

	r.logger.Info("activity refresher started", "interval", r.interval.String())
	r.cron.Start()
	go r.Refresh(ctx)

	return nil
}

// Stop halts the schedule; the returned context is done once a running refresh has finished
func (r *ActivityRefresher) Stop() context.Context {
	r.logger.Info("activity refresher stopping")
	return r.cron.Stop()
}

// Refresh refetches the live feed bypassing cached entries. A failed refresh keeps the previous
// snapshot.
func (r *ActivityRefresher) Refresh(ctx context.Context) Listing[aggregates.ZapInfo] {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	l := r.service.RecentZaps(cache.WithRefresh(ctx), r.opts)
	if l.Err != nil {
		r.logger.Warn("activity refresh failed",
			"error", l.Err,
			"duration_ms", time.Since(start).Milliseconds())
		return l
	}

	r.mu.Lock()
	r.latest = l
	r.refreshedAt = time.Now()
	r.mu.Unlock()

	r.logger.Debug("activity refreshed",
		"zaps", len(l.Items),
		"duration_ms", time.Since(start).Milliseconds())
	return l
}

// Latest returns the last successful snapshot and when it was taken; ok is false before the first
// refresh succeeds
func (r *ActivityRefresher) Latest() (Listing[aggregates.ZapInfo], time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.refreshedAt, !r.refreshedAt.IsZero()
}

// Serves reports whether the refresher's snapshot answers a request for opts
func (r *ActivityRefresher) Serves(opts Options) bool {
	return opts.ShowAll == r.opts.ShowAll && (opts.Limit == 0 || opts.Limit == r.opts.Limit)
}

// NextRun returns when the next refresh is scheduled
func (r *ActivityRefresher) NextRun() time.Time {
	r.mu.RLock()
	id := r.entryID
	r.mu.RUnlock()
	return r.cron.Entry(id).Next
}
