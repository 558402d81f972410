package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fiatjaf/eventstore"
	"github.com/fiatjaf/eventstore/slicestore"
	"github.com/fiatjaf/khatru"
	"github.com/nbd-wtf/go-nostr"
)

// DefaultMaxLimit caps how many events a single snapshot query returns
const DefaultMaxLimit = 5000

// maxLineSize bounds a single JSONL line; zap receipts embed the whole zap request
const maxLineSize = 1 << 20

// Storage is an in-memory event snapshot served through a Khatru relay.
// Nothing is written to disk; the snapshot lives as long as the process.
type Storage struct {
	relay *khatru.Relay
	store *slicestore.SliceStore
}

// LoadStats summarizes a JSONL import
type LoadStats struct {
	Loaded     int
	Duplicates int
	Malformed  int
}

// New creates an empty snapshot. maxLimit <= 0 uses DefaultMaxLimit.
func New(maxLimit int) (*Storage, error) {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}

	store := &slicestore.SliceStore{MaxLimit: maxLimit}
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize slicestore: %w", err)
	}

	relay := khatru.NewRelay()
	relay.Info.Name = "clawrank snapshot"
	relay.Info.Description = "read-only snapshot of Clawstr events"

	relay.StoreEvent = append(relay.StoreEvent, store.SaveEvent)
	relay.QueryEvents = append(relay.QueryEvents, store.QueryEvents)
	relay.CountEvents = append(relay.CountEvents, store.CountEvents)

	// Clients may read the snapshot over websocket but never write to it
	relay.RejectEvent = append(relay.RejectEvent, func(ctx context.Context, event *nostr.Event) (bool, string) {
		return true, "blocked: this relay serves a read-only snapshot"
	})

	return &Storage{relay: relay, store: store}, nil
}

// Open creates a snapshot and loads the JSONL file at path into it
func Open(ctx context.Context, path string, maxLimit int) (*Storage, LoadStats, error) {
	s, err := New(maxLimit)
	if err != nil {
		return nil, LoadStats{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	stats, err := s.LoadJSONL(ctx, f)
	if err != nil {
		return nil, stats, err
	}

	return s, stats, nil
}

// Relay returns the underlying Khatru relay instance
func (s *Storage) Relay() *khatru.Relay {
	return s.relay
}

// StoreEvent adds an event to the snapshot. Storing an id twice returns eventstore.ErrDupEvent.
func (s *Storage) StoreEvent(ctx context.Context, event *nostr.Event) error {
	if event == nil || event.ID == "" {
		return fmt.Errorf("event has no id")
	}

	for _, handler := range s.relay.StoreEvent {
		if err := handler(ctx, event); err != nil {
			if errors.Is(err, eventstore.ErrDupEvent) {
				return err
			}
			return fmt.Errorf("failed to store event: %w", err)
		}
	}

	return nil
}

// LoadJSONL ingests newline-delimited events such as `nak req` output.
// Malformed lines and duplicate ids are counted and skipped; only read errors abort the load.
func (s *Storage) LoadJSONL(ctx context.Context, r io.Reader) (LoadStats, error) {
	var stats LoadStats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event nostr.Event
		if err := json.Unmarshal([]byte(line), &event); err != nil || event.ID == "" || event.PubKey == "" {
			stats.Malformed++
			continue
		}

		if err := s.StoreEvent(ctx, &event); err != nil {
			if errors.Is(err, eventstore.ErrDupEvent) {
				stats.Duplicates++
				continue
			}
			return stats, err
		}
		stats.Loaded++
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read snapshot: %w", err)
	}

	return stats, nil
}

// QueryEvents queries events from the Khatru relay using Nostr filters, newest first
func (s *Storage) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	if len(s.relay.QueryEvents) == 0 {
		return nil, fmt.Errorf("no query handlers configured")
	}

	ch, err := s.relay.QueryEvents[0](ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	var events []*nostr.Event
	for event := range ch {
		events = append(events, event)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query interrupted: %w", err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})

	return events, nil
}

// Count returns the number of events in the snapshot
func (s *Storage) Count(ctx context.Context) (int64, error) {
	return s.store.CountEvents(ctx, nostr.Filter{})
}

// Close releases the snapshot
func (s *Storage) Close() {
	s.store.Close()
}
