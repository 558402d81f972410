package aggregates

import (
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
	"github.com/sandwichfarm/clawrank/internal/config"
)

// FilterBuilder creates Nostr filters for Clawstr queries based on query configuration
type FilterBuilder struct {
	limits  config.QueryLimits
	showAll bool
}

// NewFilterBuilder creates a new filter builder. Unless showAll is set every content filter
// is narrowed to agent-labeled events.
func NewFilterBuilder(limits config.QueryLimits, showAll bool) *FilterBuilder {
	return &FilterBuilder{
		limits:  limits,
		showAll: showAll,
	}
}

// WithShowAll returns a copy of the builder with a different agent-only toggle
func (fb *FilterBuilder) WithShowAll(showAll bool) *FilterBuilder {
	return &FilterBuilder{
		limits:  fb.limits,
		showAll: showAll,
	}
}

// ShowAll reports whether unlabeled (human) content is included
func (fb *FilterBuilder) ShowAll() bool {
	return fb.showAll
}

// Limits returns the configured per-query limits
func (fb *FilterBuilder) Limits() config.QueryLimits {
	return fb.limits
}

func (fb *FilterBuilder) applyAgentLabel(filter *nostr.Filter) {
	if fb.showAll {
		return
	}
	if filter.Tags == nil {
		filter.Tags = nostr.TagMap{}
	}
	filter.Tags["l"] = []string{clawstr.AgentLabel}
	filter.Tags["L"] = []string{clawstr.AgentNamespace}
}

func setSince(filter *nostr.Filter, since int64) {
	if since > 0 {
		sinceTs := nostr.Timestamp(since)
		filter.Since = &sinceTs
	}
}

// AlignSince floors a cutoff to a multiple of step so that windowed filters built within the
// same step are identical and share a cache entry. Callers re-apply the exact cutoff to the
// results.
func AlignSince(since int64, step time.Duration) int64 {
	n := int64(step / time.Second)
	if since <= 0 || n <= 0 {
		return since
	}
	return since - since%n
}

func setUntil(filter *nostr.Filter, until int64) {
	if until > 0 {
		untilTs := nostr.Timestamp(until)
		filter.Until = &untilTs
	}
}

func orDefault(limit, def int) int {
	if limit > 0 {
		return limit
	}
	return def
}

// BuildContentFilter matches all Clawstr comments (posts and replies) in the window.
// since and until are unix seconds; zero leaves the bound open.
func (fb *FilterBuilder) BuildContentFilter(since, until int64, limit int) nostr.Filter {
	filter := nostr.Filter{
		Kinds: []int{clawstr.KindComment},
		Tags: nostr.TagMap{
			"K": []string{clawstr.WebKind},
		},
		Limit: orDefault(limit, fb.limits.Posts),
	}

	setSince(&filter, since)
	setUntil(&filter, until)
	fb.applyAgentLabel(&filter)

	return filter
}

// BuildPostsFilter is the candidate query for post listings. Replies share the K tag so callers
// still classify the results.
func (fb *FilterBuilder) BuildPostsFilter(since, until int64, limit int) nostr.Filter {
	return fb.BuildContentFilter(since, until, orDefault(limit, fb.limits.Posts))
}

// BuildAuthorsContentFilter fetches everything authored in the window for the agent leaderboard
func (fb *FilterBuilder) BuildAuthorsContentFilter(since int64) nostr.Filter {
	return fb.BuildContentFilter(since, 0, fb.limits.Authors)
}

// BuildCommunityFilter narrows the content filter to one community
func (fb *FilterBuilder) BuildCommunityFilter(community string, since, until int64, limit int) nostr.Filter {
	filter := fb.BuildContentFilter(since, until, limit)
	filter.Tags["I"] = []string{clawstr.EncodeScope(community)}
	return filter
}

// BuildAuthorFilter matches one author's Clawstr content
func (fb *FilterBuilder) BuildAuthorFilter(pubkey string, limit int) nostr.Filter {
	filter := fb.BuildContentFilter(0, 0, limit)
	filter.Authors = []string{pubkey}
	return filter
}

// BuildEventFilter fetches a single comment by id. The agent toggle does not apply.
func (fb *FilterBuilder) BuildEventFilter(eventID string) nostr.Filter {
	return nostr.Filter{
		Kinds: []int{clawstr.KindComment},
		IDs:   []string{eventID},
		Limit: 1,
	}
}

// BuildPaymentsFilter matches zap receipts for any of the target events
func (fb *FilterBuilder) BuildPaymentsFilter(eventIDs []string) nostr.Filter {
	return nostr.Filter{
		Kinds: []int{clawstr.KindZapReceipt},
		Tags: nostr.TagMap{
			"e": eventIDs,
		},
		Limit: fb.limits.Payments,
	}
}

// BuildReceiptsFilter is the activity variant of BuildPaymentsFilter with its own limit and window
func (fb *FilterBuilder) BuildReceiptsFilter(eventIDs []string, since int64, limit int) nostr.Filter {
	filter := fb.BuildPaymentsFilter(eventIDs)
	filter.Limit = orDefault(limit, fb.limits.Activity)
	setSince(&filter, since)
	return filter
}

// BuildReactionsFilter matches reactions to any of the target events
func (fb *FilterBuilder) BuildReactionsFilter(eventIDs []string) nostr.Filter {
	return nostr.Filter{
		Kinds: []int{clawstr.KindReaction},
		Tags: nostr.TagMap{
			"e": eventIDs,
		},
		Limit: fb.limits.Reactions,
	}
}

// BuildRepliesFilter matches replies (k=1111) to any of the target events
func (fb *FilterBuilder) BuildRepliesFilter(eventIDs []string) nostr.Filter {
	filter := nostr.Filter{
		Kinds: []int{clawstr.KindComment},
		Tags: nostr.TagMap{
			"k": []string{clawstr.ReplyKind},
			"e": eventIDs,
		},
		Limit: fb.limits.Replies,
	}

	fb.applyAgentLabel(&filter)

	return filter
}

// Accepts reports whether a fetched event passes the agent-only toggle.
// Relays match #l and #L independently, so the namespace pairing is rechecked here.
func (fb *FilterBuilder) Accepts(event *nostr.Event) bool {
	return fb.showAll || clawstr.IsAgentAuthored(event)
}
