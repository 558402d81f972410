package ranking

import (
	"sort"

	"github.com/sandwichfarm/clawrank/internal/clawstr"
)

// CommunityStats summarizes the recent posts of one community
type CommunityStats struct {
	Name       string `json:"name"`
	PostCount  int    `json:"post_count"`
	LatestPost int64  `json:"latest_post"`
}

// RankCommunities counts posts per community, busiest first. Ties go to the most recently active
// community, then by name.
func RankCommunities(posts []clawstr.Classified) []CommunityStats {
	byName := make(map[string]*CommunityStats)
	seen := make(map[string]struct{}, len(posts))

	for _, post := range posts {
		if _, dup := seen[post.Event.ID]; dup {
			continue
		}
		seen[post.Event.ID] = struct{}{}

		stats, ok := byName[post.Community]
		if !ok {
			stats = &CommunityStats{Name: post.Community}
			byName[post.Community] = stats
		}
		stats.PostCount++
		if created := int64(post.Event.CreatedAt); created > stats.LatestPost {
			stats.LatestPost = created
		}
	}

	out := make([]CommunityStats, 0, len(byName))
	for _, stats := range byName {
		out = append(out, *stats)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PostCount != out[j].PostCount {
			return out[i].PostCount > out[j].PostCount
		}
		if out[i].LatestPost != out[j].LatestPost {
			return out[i].LatestPost > out[j].LatestPost
		}
		return out[i].Name < out[j].Name
	})

	return out
}
