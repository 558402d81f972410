package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/cache"
	"github.com/sandwichfarm/clawrank/internal/config"
	"github.com/sandwichfarm/clawrank/internal/entities"
	"github.com/sandwichfarm/clawrank/internal/feed"
	nostrclient "github.com/sandwichfarm/clawrank/internal/nostr"
	"github.com/sandwichfarm/clawrank/internal/ops"
	"github.com/sandwichfarm/clawrank/internal/ranking"
	"github.com/sandwichfarm/clawrank/internal/storage"
)

// app holds everything a command needs. The caller must defer app.Close().
type app struct {
	cfg      *config.Config
	logger   *ops.Logger
	querier  nostrclient.Querier
	service  *feed.Service
	resolver *entities.Resolver
	snapshot *storage.Storage
	client   *nostrclient.Client
	store    cache.Store

	closers []func()
}

func configExample() ([]byte, error) {
	return config.GetExampleConfig()
}

// loadConfig reads the config file, or starts from defaults plus environment overrides
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Parse(nil)
	}
	return config.Load(path)
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := ops.NewLogger(&cfg.Logging)
	ops.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	switch cfg.Source.Driver {
	case "snapshot":
		st, stats, err := storage.Open(ctx, cfg.Source.SnapshotPath, 0)
		if err != nil {
			return nil, fmt.Errorf("opening snapshot: %w", err)
		}
		logger.Info("snapshot loaded",
			"path", cfg.Source.SnapshotPath,
			"events", stats.Loaded,
			"duplicates", stats.Duplicates,
			"malformed", stats.Malformed)
		a.snapshot = st
		a.querier = st
		a.closers = append(a.closers, st.Close)
	default:
		client := nostrclient.New(ctx, &cfg.Relays)
		a.client = client
		a.querier = client
		a.closers = append(a.closers, client.Close)
	}

	if cfg.Caching.Enabled {
		store, err := cache.New(ctx, &cfg.Caching)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initializing cache: %w", err)
		}
		a.store = store
		a.querier = cache.NewQuerier(a.querier, store, cache.PolicyFromConfig(&cfg.Caching.TTL), logger)
		a.closers = append(a.closers, func() { store.Close() })
	}

	a.service = feed.NewService(a.querier, cfg, logger)
	a.resolver = entities.NewResolver(a.querier)
	return a, nil
}

// diagnostics registers a check per configured dependency
func (a *app) diagnostics() *ops.DiagnosticsCollector {
	d := ops.NewDiagnosticsCollector(version, commit)

	if a.snapshot != nil {
		d.AddCheck("snapshot", func(ctx context.Context) (map[string]any, error) {
			n, err := a.snapshot.Count(ctx)
			return map[string]any{"path": a.cfg.Source.SnapshotPath, "events": n}, err
		})
	}

	if a.client != nil {
		d.AddCheck("relays", func(ctx context.Context) (map[string]any, error) {
			fields := make(map[string]any)
			reachable := 0
			for _, info := range a.client.ProbeRelays(ctx) {
				if !info.Reachable {
					fields[info.URL] = "unreachable: " + info.Error
					continue
				}
				reachable++
				fields[info.URL] = fmt.Sprintf("%s %s %s, %s", info.Name, info.Software, info.Version, info.Latency.Round(time.Millisecond))
			}
			if reachable == 0 {
				return fields, fmt.Errorf("no seed relay is reachable")
			}
			return fields, nil
		})
	}

	if a.store != nil {
		d.AddCheck("cache", func(ctx context.Context) (map[string]any, error) {
			_, _, err := a.store.Get(ctx, cache.Key(nostr.Filter{}))
			return map[string]any{"engine": a.cfg.Caching.Engine}, err
		})
	}

	return d
}

// options applies the command line flags over the configured defaults
func (a *app) options() (feed.Options, error) {
	opts := a.service.DefaultOptions()
	if showAll {
		opts.ShowAll = true
	}
	if timeRange != "" {
		tr, err := ranking.ParseTimeRange(timeRange)
		if err != nil {
			return opts, err
		}
		opts.TimeRange = tr
	}
	if limit < 0 {
		return opts, fmt.Errorf("limit must not be negative")
	}
	opts.Limit = limit
	return opts, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
