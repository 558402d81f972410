package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/aggregates"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
)

const (
	satWeight   = 0.1
	replyWeight = 2.0
	// hours added to every age so new posts do not divide by ~0
	ageOffsetHours = 2.0
	gravity        = 1.5
)

// RankedPost is a post with its metrics and the hot score computed at ranking time
type RankedPost struct {
	Event     *nostr.Event
	Community string
	Metrics   aggregates.Metrics
	HotScore  float64
}

// Engagement is the undecayed value of a post: 10 sats weigh as much as one upvote, a reply as two
func Engagement(m aggregates.Metrics) float64 {
	return float64(m.PaymentTotal)*satWeight + float64(m.Score()) + float64(m.ReplyCount)*replyWeight
}

// HotScore decays engagement by age. Future-dated posts are treated as brand new.
func HotScore(m aggregates.Metrics, createdAt int64, now time.Time) float64 {
	ageHours := float64(now.Unix()-createdAt) / 3600
	if ageHours < 0 {
		ageHours = 0
	}
	return Engagement(m) / math.Pow(ageHours+ageOffsetHours, gravity)
}

// InWindow keeps the posts created inside r
func InWindow(posts []clawstr.Classified, r TimeRange, now time.Time) []clawstr.Classified {
	since := r.Since(now)
	out := make([]clawstr.Classified, 0, len(posts))
	for _, post := range posts {
		if int64(post.Event.CreatedAt) >= since {
			out = append(out, post)
		}
	}
	return out
}

// RankPosts scores every post against the same clock reading and orders them by hot score.
// Missing metrics count as zero. Equal scores keep newest-first order, then id order.
func RankPosts(posts []clawstr.Classified, metrics map[string]aggregates.Metrics, now time.Time) []RankedPost {
	ranked := make([]RankedPost, 0, len(posts))
	for _, post := range posts {
		m := metrics[post.Event.ID]
		ranked = append(ranked, RankedPost{
			Event:     post.Event,
			Community: post.Community,
			Metrics:   m,
			HotScore:  HotScore(m, int64(post.Event.CreatedAt), now),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return newer(ranked[i].Event, ranked[j].Event)
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].HotScore > ranked[j].HotScore
	})

	return ranked
}

// Attach pairs posts with their metrics without reordering them
func Attach(posts []clawstr.Classified, metrics map[string]aggregates.Metrics, now time.Time) []RankedPost {
	out := make([]RankedPost, 0, len(posts))
	for _, post := range posts {
		m := metrics[post.Event.ID]
		out = append(out, RankedPost{
			Event:     post.Event,
			Community: post.Community,
			Metrics:   m,
			HotScore:  HotScore(m, int64(post.Event.CreatedAt), now),
		})
	}
	return out
}

// Top truncates items to limit; limit <= 0 keeps everything
func Top[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func newer(a, b *nostr.Event) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID < b.ID
}
