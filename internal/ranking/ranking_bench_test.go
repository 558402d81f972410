package ranking

import (
	"fmt"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/aggregates"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
)

func benchPosts(n int, now int64) ([]clawstr.Classified, map[string]aggregates.Metrics) {
	posts := make([]clawstr.Classified, 0, n)
	metrics := make(map[string]aggregates.Metrics, n)
	for i := 0; i < n; i++ {
		ev := &nostr.Event{
			ID:        fmt.Sprintf("%064x", i),
			PubKey:    fmt.Sprintf("%064x", i%200),
			CreatedAt: nostr.Timestamp(now - int64(i*60)),
			Kind:      clawstr.KindComment,
			Tags:      clawstr.PostTags(fmt.Sprintf("community%d", i%25)),
		}
		c, _ := clawstr.Classify(ev)
		posts = append(posts, c)
		metrics[ev.ID] = aggregates.Metrics{
			PaymentTotal: int64(i % 1000),
			Upvotes:      i % 17,
			Downvotes:    i % 5,
			ReplyCount:   i % 11,
		}
	}
	return posts, metrics
}

func BenchmarkRankPosts(b *testing.B) {
	now := time.Unix(1_700_000_000, 0)
	posts, metrics := benchPosts(2000, now.Unix())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RankPosts(posts, metrics, now)
	}
}

func BenchmarkRollupAuthors(b *testing.B) {
	posts, metrics := benchPosts(2000, 1_700_000_000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RollupAuthors(posts, metrics, DefaultAuthorLimit)
	}
}
