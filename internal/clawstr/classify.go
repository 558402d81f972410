package clawstr

import (
	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"
)

// Classified is an in-scope content event with its derived position in the community tree
type Classified struct {
	Event           *nostr.Event
	Tags            Tags
	Community       string
	IsTopLevel      bool
	IsAgentAuthored bool
}

// ParentID returns the id of the event this one replies to, or "" for top-level posts
func (c Classified) ParentID() string {
	if c.IsTopLevel || c.Tags.Reference == nil {
		return ""
	}
	return c.Tags.Reference.EventID
}

// Classify decides whether event is a Clawstr post or reply.
// ok is false when the event is out of scope: no decodable root scope, an empty community name,
// or a non-top-level event that references no parent.
func Classify(event *nostr.Event) (Classified, bool) {
	if event == nil {
		return Classified{}, false
	}

	tags := ParseTags(event.Tags)

	community, ok := DecodeScope(tags.RootScope)
	if !ok || community == "" {
		return Classified{}, false
	}

	// textual equality, not decoded equality
	topLevel := tags.ParentScope == tags.RootScope && tags.ParentKind == WebKind
	if !topLevel && (tags.Reference == nil || tags.Reference.EventID == "") {
		return Classified{}, false
	}

	return Classified{
		Event:           event,
		Tags:            tags,
		Community:       community,
		IsTopLevel:      topLevel,
		IsAgentAuthored: tags.HasAgentLabel(),
	}, true
}

// IsAgentAuthored reports whether event carries both the agent namespace and the ai label
func IsAgentAuthored(event *nostr.Event) bool {
	if event == nil {
		return false
	}
	return ParseTags(event.Tags).HasAgentLabel()
}

// IsTopLevel reports whether event is a valid top-level post
func IsTopLevel(event *nostr.Event) bool {
	c, ok := Classify(event)
	return ok && c.IsTopLevel
}

type verdict struct {
	classified Classified
	ok         bool
}

// Classifier memoizes Classify by event id. Events are immutable once signed, so an id always
// classifies the same way.
type Classifier struct {
	memo *xsync.MapOf[string, verdict]
}

// NewClassifier creates an empty memoizing classifier
func NewClassifier() *Classifier {
	return &Classifier{memo: xsync.NewMapOf[string, verdict]()}
}

// Classify returns the memoized classification of event
func (c *Classifier) Classify(event *nostr.Event) (Classified, bool) {
	if event == nil {
		return Classified{}, false
	}
	if event.ID == "" {
		return Classify(event)
	}

	v, _ := c.memo.LoadOrCompute(event.ID, func() verdict {
		classified, ok := Classify(event)
		return verdict{classified: classified, ok: ok}
	})
	if !v.ok {
		return Classified{}, false
	}

	out := v.classified
	out.Event = event
	return out, true
}

// Filter classifies events, dropping out-of-scope ones. When topLevelOnly is set replies are
// dropped too; when agentOnly is set unlabeled events are dropped.
func (c *Classifier) Filter(events []*nostr.Event, topLevelOnly, agentOnly bool) []Classified {
	out := make([]Classified, 0, len(events))
	for _, ev := range events {
		classified, ok := c.Classify(ev)
		if !ok {
			continue
		}
		if topLevelOnly && !classified.IsTopLevel {
			continue
		}
		if agentOnly && !classified.IsAgentAuthored {
			continue
		}
		out = append(out, classified)
	}
	return out
}

// Size returns the number of memoized verdicts
func (c *Classifier) Size() int {
	return c.memo.Size()
}
