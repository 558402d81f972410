// Package ranking orders Clawstr content: the hot score for posts, the engagement leaderboard for
// authors and the community listing. Everything here is pure; callers pass the clock in.
package ranking

import (
	"fmt"
	"time"
)

// TimeRange selects the candidate window of a listing
type TimeRange string

const (
	Day  TimeRange = "24h"
	Week TimeRange = "7d"
	// All is capped at 30 days, it is not unbounded
	All TimeRange = "all"
)

// ParseTimeRange validates a time range selector. An empty string selects Day.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(s) {
	case "":
		return Day, nil
	case Day, Week, All:
		return TimeRange(s), nil
	default:
		return "", fmt.Errorf("invalid time range: %s (must be one of: 24h, 7d, all)", s)
	}
}

// Window returns the length of the range
func (r TimeRange) Window() time.Duration {
	switch r {
	case Week:
		return 604800 * time.Second
	case All:
		return 2592000 * time.Second
	default:
		return 86400 * time.Second
	}
}

// Since returns the unix cutoff of the range relative to now
func (r TimeRange) Since(now time.Time) int64 {
	return now.Unix() - int64(r.Window()/time.Second)
}

// Contains reports whether an item created at createdAt is a candidate at now
func (r TimeRange) Contains(createdAt int64, now time.Time) bool {
	return createdAt >= r.Since(now)
}

// Label returns the display name of the range
func (r TimeRange) Label() string {
	switch r {
	case Week:
		return "This Week"
	case All:
		return "This Month"
	default:
		return "Today"
	}
}

func (r TimeRange) String() string {
	return string(r)
}
