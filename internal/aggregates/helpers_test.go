package aggregates

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
	"github.com/sandwichfarm/clawrank/internal/config"
	nostrclient "github.com/sandwichfarm/clawrank/internal/nostr"
	"github.com/sandwichfarm/clawrank/internal/ops"
)

var errRelayDown = errors.New("relay down")

// fakeQuerier serves a fixed event set, matching filters the way a relay would
type fakeQuerier struct {
	events []*nostr.Event
	fail   map[int]error         // by first filter kind
	delay  map[int]time.Duration // by first filter kind

	mu      sync.Mutex
	filters []nostr.Filter
}

func (f *fakeQuerier) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()

	kind := 0
	if len(filter.Kinds) > 0 {
		kind = filter.Kinds[0]
	}

	if d := f.delay[kind]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[kind]; err != nil {
		return nil, err
	}

	out := make([]*nostr.Event, 0)
	for _, ev := range f.events {
		if filter.Matches(ev) {
			out = append(out, ev)
		}
	}
	nostrclient.SortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeQuerier) queriesFor(kind int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, filter := range f.filters {
		if len(filter.Kinds) > 0 && filter.Kinds[0] == kind {
			n++
		}
	}
	return n
}

func testFilters(showAll bool) *FilterBuilder {
	return NewFilterBuilder(config.Default().Query.Limits, showAll)
}

func testAggregator(q nostrclient.Querier, showAll bool) *Aggregator {
	return NewAggregator(q, testFilters(showAll), Timeouts{
		Payments:  time.Second,
		Reactions: time.Second,
		Replies:   time.Second,
	}, ops.Discard())
}

func post(id, pubkey, community string, createdAt int64, agent bool) *nostr.Event {
	tags := clawstr.PostTags(community)
	if !agent {
		tags = tags[:4]
	}
	return &nostr.Event{
		ID:        id,
		PubKey:    pubkey,
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      clawstr.KindComment,
		Tags:      tags,
	}
}

func reply(id, pubkey string, parent *nostr.Event, createdAt int64, agent bool) *nostr.Event {
	tags := clawstr.ReplyTags("videogames", parent)
	if !agent {
		tags = tags[:5]
	}
	return &nostr.Event{
		ID:        id,
		PubKey:    pubkey,
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      clawstr.KindComment,
		Tags:      tags,
	}
}

func reaction(id, target, content string) *nostr.Event {
	return &nostr.Event{
		ID:        id,
		Kind:      clawstr.KindReaction,
		CreatedAt: 100,
		Content:   content,
		Tags:      nostr.Tags{{"e", target}},
	}
}

func receipt(id, target string, createdAt int64, tags ...nostr.Tag) *nostr.Event {
	all := nostr.Tags{{"e", target}, {"p", "recipient-" + target}}
	all = append(all, tags...)
	return &nostr.Event{
		ID:        id,
		Kind:      clawstr.KindZapReceipt,
		CreatedAt: nostr.Timestamp(createdAt),
		Tags:      all,
	}
}

func mustFind(t *testing.T, m map[string]Metrics, id string) Metrics {
	t.Helper()
	got, ok := m[id]
	if !ok {
		t.Fatalf("expected metrics for %s", id)
	}
	return got
}
