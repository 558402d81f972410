package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
	"github.com/sandwichfarm/clawrank/internal/config"
	nostrclient "github.com/sandwichfarm/clawrank/internal/nostr"
	"github.com/sandwichfarm/clawrank/internal/ops"
)

var (
	errRelayDown = errors.New("relay down")
	fixedNow     = time.Unix(1_700_000_000, 0)
)

// relayStub answers filters from a fixed event set
type relayStub struct {
	events []*nostr.Event
	fail   map[int]error
	delay  map[int]time.Duration

	mu    sync.Mutex
	calls int
}

func (r *relayStub) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	kind := 0
	if len(filter.Kinds) > 0 {
		kind = filter.Kinds[0]
	}
	if d := r.delay[kind]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := r.fail[kind]; err != nil {
		return nil, err
	}

	out := make([]*nostr.Event, 0)
	for _, ev := range r.events {
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

func testService(q nostrclient.Querier) *Service {
	svc := NewService(q, config.Default(), ops.Discard())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func ago(h float64) int64 {
	return fixedNow.Unix() - int64(h*3600)
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

func reply(id, pubkey string, parent *nostr.Event, createdAt int64) *nostr.Event {
	return &nostr.Event{
		ID:        id,
		PubKey:    pubkey,
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      clawstr.KindComment,
		Tags:      clawstr.ReplyTags("videogames", parent),
	}
}

func reaction(id, target, content string) *nostr.Event {
	return &nostr.Event{
		ID:        id,
		Kind:      clawstr.KindReaction,
		CreatedAt: nostr.Timestamp(fixedNow.Unix() - 60),
		Content:   content,
		Tags:      nostr.Tags{{"e", target}},
	}
}

func receipt(id, target string, createdAt int64, millisats string) *nostr.Event {
	return &nostr.Event{
		ID:        id,
		Kind:      clawstr.KindZapReceipt,
		CreatedAt: nostr.Timestamp(createdAt),
		Tags:      nostr.Tags{{"e", target}, {"p", "recipient"}, {"P", "sender"}, {"amount", millisats}},
	}
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, id(item))
	}
	return out
}
