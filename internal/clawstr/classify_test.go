package clawstr

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

const scope = "https://clawstr.com/c/videogames"

func TestParseTags_FirstMatchWins(t *testing.T) {
	tags := ParseTags(nostr.Tags{
		{"I", scope},
		{"I", "https://clawstr.com/c/other"},
		{"e", "first-parent", "wss://relay.example", "author-1"},
		{"e", "second-parent"},
		{"p", "recipient"},
		{"P", "sender"},
		{"amount", "21000"},
		{"t", "unknown"},
		{"x"},
	})

	if tags.RootScope != scope {
		t.Errorf("RootScope = %q, want %q", tags.RootScope, scope)
	}
	if tags.Reference == nil || tags.Reference.EventID != "first-parent" {
		t.Fatalf("Reference = %+v, want first-parent", tags.Reference)
	}
	if tags.Reference.RelayHint != "wss://relay.example" || tags.Reference.Author != "author-1" {
		t.Errorf("Reference = %+v", tags.Reference)
	}
	if tags.Recipient != "recipient" || tags.Sender != "sender" {
		t.Errorf("p/P confused: recipient=%q sender=%q", tags.Recipient, tags.Sender)
	}
	if tags.Amount != "21000" {
		t.Errorf("Amount = %q", tags.Amount)
	}
	if len(tags.Extra) != 2 {
		t.Errorf("expected 2 uninterpreted tags, got %d: %v", len(tags.Extra), tags.Extra)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		tags          nostr.Tags
		wantOK        bool
		wantTopLevel  bool
		wantCommunity string
	}{
		{
			name:          "top-level post",
			tags:          nostr.Tags{{"I", scope}, {"K", "web"}, {"i", scope}, {"k", "web"}},
			wantOK:        true,
			wantTopLevel:  true,
			wantCommunity: "videogames",
		},
		{
			name:          "reply",
			tags:          nostr.Tags{{"I", scope}, {"K", "web"}, {"e", "parent-id", "", "pk"}, {"k", "1111"}},
			wantOK:        true,
			wantTopLevel:  false,
			wantCommunity: "videogames",
		},
		{
			name:   "reply without parent reference",
			tags:   nostr.Tags{{"I", scope}, {"K", "web"}, {"k", "1111"}},
			wantOK: false,
		},
		{
			name:   "same scope but wrong parent kind and no reference",
			tags:   nostr.Tags{{"I", scope}, {"i", scope}, {"k", "#"}},
			wantOK: false,
		},
		{
			name:   "missing root scope",
			tags:   nostr.Tags{{"i", scope}, {"k", "web"}},
			wantOK: false,
		},
		{
			name:   "foreign root scope",
			tags:   nostr.Tags{{"I", "#videogames"}, {"i", "#videogames"}, {"k", "web"}},
			wantOK: false,
		},
		{
			name:   "empty community",
			tags:   nostr.Tags{{"I", ScopePrefix}, {"i", ScopePrefix}, {"k", "web"}},
			wantOK: false,
		},
		{
			name:          "parent scope only textually different",
			tags:          nostr.Tags{{"I", scope}, {"i", "https://clawstr.com/c/VideoGames"}, {"k", "web"}, {"e", "x"}},
			wantOK:        true,
			wantTopLevel:  false,
			wantCommunity: "videogames",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &nostr.Event{ID: tt.name, Kind: KindComment, Tags: tt.tags}
			got, ok := Classify(ev)
			if ok != tt.wantOK {
				t.Fatalf("Classify() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.IsTopLevel != tt.wantTopLevel {
				t.Errorf("IsTopLevel = %v, want %v", got.IsTopLevel, tt.wantTopLevel)
			}
			if got.Community != tt.wantCommunity {
				t.Errorf("Community = %q, want %q", got.Community, tt.wantCommunity)
			}
		})
	}
}

func TestClassify_Idempotent(t *testing.T) {
	ev := &nostr.Event{
		ID:   "abc",
		Kind: KindComment,
		Tags: PostTags("VideoGames"),
	}

	first, ok1 := Classify(ev)
	second, ok2 := Classify(ev)
	if ok1 != ok2 || first.IsTopLevel != second.IsTopLevel || first.Community != second.Community ||
		first.IsAgentAuthored != second.IsAgentAuthored {
		t.Errorf("classification differs between calls: %+v vs %+v", first, second)
	}
}

func TestIsAgentAuthored(t *testing.T) {
	tests := []struct {
		name    string
		content string
		tags    nostr.Tags
		want    bool
	}{
		{"both tags", "", nostr.Tags{{"L", "agent"}, {"l", "ai", "agent"}}, true},
		{"tags anywhere in list", "", nostr.Tags{{"l", "ai", "agent"}, {"I", scope}, {"L", "other"}, {"L", "agent"}}, true},
		{"namespace only", "", nostr.Tags{{"L", "agent"}}, false},
		{"label only", "", nostr.Tags{{"l", "ai", "agent"}}, false},
		{"label in other namespace", "", nostr.Tags{{"L", "agent"}, {"l", "ai", "ugc"}}, false},
		{"label without namespace", "", nostr.Tags{{"L", "agent"}, {"l", "ai"}}, false},
		{"content mentions AI", "I am an AI agent", nostr.Tags{{"I", scope}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &nostr.Event{Content: tt.content, Tags: tt.tags}
			if got := IsAgentAuthored(ev); got != tt.want {
				t.Errorf("IsAgentAuthored() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTagBuilders(t *testing.T) {
	post := &nostr.Event{ID: "post-1", PubKey: "author-1", Kind: KindComment, Tags: PostTags("VideoGames")}

	classified, ok := Classify(post)
	if !ok || !classified.IsTopLevel || !classified.IsAgentAuthored {
		t.Fatalf("PostTags should produce an agent-authored top-level post, got %+v ok=%v", classified, ok)
	}

	reply := &nostr.Event{ID: "reply-1", Kind: KindComment, Tags: ReplyTags("videogames", post)}
	classified, ok = Classify(reply)
	if !ok || classified.IsTopLevel {
		t.Fatalf("ReplyTags should produce a reply, got %+v ok=%v", classified, ok)
	}
	if classified.ParentID() != "post-1" {
		t.Errorf("ParentID() = %q, want post-1", classified.ParentID())
	}
	if classified.Tags.Recipient != "author-1" {
		t.Errorf("Recipient = %q, want author-1", classified.Tags.Recipient)
	}
}

func TestClassifier_Memoizes(t *testing.T) {
	c := NewClassifier()
	events := []*nostr.Event{
		{ID: "a", Tags: PostTags("one")},
		{ID: "b", Tags: ReplyTags("one", &nostr.Event{ID: "a"})},
		{ID: "c", Tags: nostr.Tags{{"I", "#one"}}},
		{ID: "d", Tags: nostr.Tags{{"I", EncodeScope("two")}, {"i", EncodeScope("two")}, {"k", "web"}}},
	}

	all := c.Filter(events, false, false)
	if len(all) != 3 {
		t.Errorf("Filter(all) = %d events, want 3", len(all))
	}

	posts := c.Filter(events, true, false)
	if len(posts) != 2 {
		t.Errorf("Filter(topLevel) = %d events, want 2", len(posts))
	}

	agentPosts := c.Filter(events, true, true)
	if len(agentPosts) != 1 || agentPosts[0].Event.ID != "a" {
		t.Errorf("Filter(topLevel, agent) = %+v, want only a", agentPosts)
	}

	if c.Size() != 4 {
		t.Errorf("Size() = %d, want 4 memoized verdicts", c.Size())
	}
}
