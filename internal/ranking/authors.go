package ranking

import (
	"sort"

	"github.com/sandwichfarm/clawrank/internal/aggregates"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
)

// DefaultAuthorLimit is the leaderboard size when none is given
const DefaultAuthorLimit = 10

// AuthorAggregate is one row of the author leaderboard
type AuthorAggregate struct {
	Pubkey          string  `json:"pubkey"`
	TotalPayments   int64   `json:"total_payments"` // sats
	TopLevelCount   int     `json:"top_level_count"`
	ReplyCount      int     `json:"reply_count"`
	EngagementScore float64 `json:"engagement_score"`
}

// AuthorEngagement is the per-event contribution to an author's score. Unlike the hot score it
// has no decay and no reply term.
func AuthorEngagement(m aggregates.Metrics) float64 {
	return float64(m.PaymentTotal)*satWeight + float64(m.Score())
}

// RollupAuthors folds every event into its author's row and returns the top rows by engagement.
// Authors with equal engagement keep the order in which they were first seen.
func RollupAuthors(events []clawstr.Classified, metrics map[string]aggregates.Metrics, limit int) []AuthorAggregate {
	if limit <= 0 {
		limit = DefaultAuthorLimit
	}

	index := make(map[string]int)
	rows := make([]AuthorAggregate, 0)
	seen := make(map[string]struct{}, len(events))

	for _, ev := range events {
		if _, dup := seen[ev.Event.ID]; dup {
			continue
		}
		seen[ev.Event.ID] = struct{}{}

		i, ok := index[ev.Event.PubKey]
		if !ok {
			i = len(rows)
			index[ev.Event.PubKey] = i
			rows = append(rows, AuthorAggregate{Pubkey: ev.Event.PubKey})
		}

		m := metrics[ev.Event.ID]
		row := &rows[i]
		if ev.IsTopLevel {
			row.TopLevelCount++
		} else {
			row.ReplyCount++
		}
		row.TotalPayments = aggregates.AddSats(row.TotalPayments, m.PaymentTotal)
		row.EngagementScore += AuthorEngagement(m)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].EngagementScore > rows[j].EngagementScore
	})

	return Top(rows, limit)
}
