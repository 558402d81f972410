package aggregates

import (
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
)

// Polarity is the vote direction of a reaction
type Polarity int

const (
	// Ignored covers emoji and custom reactions
	Ignored Polarity = iota
	Up
	Down
)

func (p Polarity) String() string {
	switch p {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "ignored"
	}
}

// ReactionPolarity maps reaction content to a vote: "+" or empty is up, "-" is down
func ReactionPolarity(content string) Polarity {
	switch strings.TrimSpace(content) {
	case "+", "":
		return Up
	case "-":
		return Down
	default:
		return Ignored
	}
}

// VoteTally counts votes for one event
type VoteTally struct {
	Upvotes   int
	Downvotes int
}

// Score returns upvotes minus downvotes
func (v VoteTally) Score() int {
	return v.Upvotes - v.Downvotes
}

// TallyReactions counts votes per target. Every id in eventIDs is present in the result.
func TallyReactions(eventIDs []string, reactions []*nostr.Event) map[string]VoteTally {
	tallies := make(map[string]VoteTally, len(eventIDs))
	for _, id := range eventIDs {
		tallies[id] = VoteTally{}
	}

	seen := make(map[string]struct{}, len(reactions))
	for _, reaction := range reactions {
		if _, dup := seen[reaction.ID]; dup {
			continue
		}
		seen[reaction.ID] = struct{}{}

		target := clawstr.FirstReference(reaction)
		tally, ok := tallies[target]
		if !ok {
			continue
		}

		switch ReactionPolarity(reaction.Content) {
		case Up:
			tally.Upvotes++
		case Down:
			tally.Downvotes++
		default:
			continue
		}
		tallies[target] = tally
	}

	return tallies
}

// TallyReplies counts replies per parent. Every id in eventIDs is present in the result.
// accept, when non-nil, drops replies that fail it.
func TallyReplies(eventIDs []string, replies []*nostr.Event, accept func(*nostr.Event) bool) map[string]int {
	counts := make(map[string]int, len(eventIDs))
	for _, id := range eventIDs {
		counts[id] = 0
	}

	seen := make(map[string]struct{}, len(replies))
	for _, reply := range replies {
		if _, dup := seen[reply.ID]; dup {
			continue
		}
		seen[reply.ID] = struct{}{}

		if accept != nil && !accept(reply) {
			continue
		}

		parent := clawstr.FirstReference(reply)
		if _, ok := counts[parent]; ok {
			counts[parent]++
		}
	}

	return counts
}
