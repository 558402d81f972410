package ranking

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
)

func classified(t *testing.T, id, pubkey, community string, createdAt int64) clawstr.Classified {
	t.Helper()
	ev := &nostr.Event{
		ID:        id,
		PubKey:    pubkey,
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      clawstr.KindComment,
		Tags:      clawstr.PostTags(community),
	}
	c, ok := clawstr.Classify(ev)
	if !ok {
		t.Fatalf("fixture %s did not classify", id)
	}
	return c
}

func classifiedReply(t *testing.T, id, pubkey string, parent clawstr.Classified, createdAt int64) clawstr.Classified {
	t.Helper()
	ev := &nostr.Event{
		ID:        id,
		PubKey:    pubkey,
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      clawstr.KindComment,
		Tags:      clawstr.ReplyTags(parent.Community, parent.Event),
	}
	c, ok := clawstr.Classify(ev)
	if !ok || c.IsTopLevel {
		t.Fatalf("fixture %s should classify as a reply", id)
	}
	return c
}
