package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fiatjaf/eventstore"
	"github.com/nbd-wtf/go-nostr"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(100)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(s.Close)

	return s
}

func TestStoreAndQueryEvents(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	event := &nostr.Event{
		ID:        "test-event-id",
		PubKey:    "test-pubkey",
		CreatedAt: nostr.Now(),
		Kind:      1111,
		Tags:      nostr.Tags{{"I", "https://clawstr.com/c/videogames"}},
		Content:   "Hello, Clawstr!",
		Sig:       "test-signature",
	}

	if err := s.StoreEvent(ctx, event); err != nil {
		t.Fatalf("Failed to store event: %v", err)
	}

	events, err := s.QueryEvents(ctx, nostr.Filter{IDs: []string{event.ID}})
	if err != nil {
		t.Fatalf("Failed to query events: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].ID != event.ID {
		t.Errorf("Expected event ID %s, got %s", event.ID, events[0].ID)
	}

	if err := s.StoreEvent(ctx, event); !errors.Is(err, eventstore.ErrDupEvent) {
		t.Errorf("Expected ErrDupEvent on second store, got %v", err)
	}
}

func TestQueryEvents_NewestFirstWithTagFilter(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	for i, kind := range []string{"web", "1111", "web"} {
		ev := &nostr.Event{
			ID:        strings.Repeat(string(rune('a'+i)), 64),
			PubKey:    "pk",
			CreatedAt: nostr.Timestamp(1000 + i),
			Kind:      1111,
			Tags:      nostr.Tags{{"k", kind}},
		}
		if err := s.StoreEvent(ctx, ev); err != nil {
			t.Fatalf("StoreEvent() error = %v", err)
		}
	}

	events, err := s.QueryEvents(ctx, nostr.Filter{
		Kinds: []int{1111},
		Tags:  nostr.TagMap{"k": []string{"web"}},
	})
	if err != nil {
		t.Fatalf("QueryEvents() error = %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].CreatedAt != 1002 || events[1].CreatedAt != 1000 {
		t.Errorf("Expected newest first, got %d then %d", events[0].CreatedAt, events[1].CreatedAt)
	}
}

func TestLoadJSONL(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	input := strings.Join([]string{
		`{"id":"1111111111111111111111111111111111111111111111111111111111111111","pubkey":"aa","created_at":100,"kind":1111,"tags":[],"content":"one","sig":"00"}`,
		`not json`,
		``,
		`{"id":"2222222222222222222222222222222222222222222222222222222222222222","pubkey":"bb","created_at":200,"kind":7,"tags":[["e","1111111111111111111111111111111111111111111111111111111111111111"]],"content":"+","sig":"00"}`,
		`{"id":"1111111111111111111111111111111111111111111111111111111111111111","pubkey":"aa","created_at":100,"kind":1111,"tags":[],"content":"one","sig":"00"}`,
		`{"pubkey":"cc","created_at":300,"kind":1111}`,
	}, "\n")

	stats, err := s.LoadJSONL(ctx, strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadJSONL() error = %v", err)
	}

	if stats.Loaded != 2 {
		t.Errorf("Loaded = %d, want 2", stats.Loaded)
	}
	if stats.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", stats.Duplicates)
	}
	if stats.Malformed != 2 {
		t.Errorf("Malformed = %d, want 2", stats.Malformed)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}

func TestLoadJSONL_Cancelled(t *testing.T) {
	s := setupTestStorage(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.LoadJSONL(ctx, strings.NewReader(`{"id":"x","pubkey":"y"}`))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRelayRejectsWrites(t *testing.T) {
	s := setupTestStorage(t)

	if len(s.Relay().RejectEvent) == 0 {
		t.Fatal("expected a reject handler on the snapshot relay")
	}

	reject, msg := s.Relay().RejectEvent[0](context.Background(), &nostr.Event{ID: "x"})
	if !reject || !strings.HasPrefix(msg, "blocked:") {
		t.Errorf("expected writes to be blocked, got reject=%v msg=%q", reject, msg)
	}
}
