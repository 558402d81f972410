package ranking

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FormatSats renders a sats amount compactly: 999, 1.5k, 2.1M
func FormatSats(sats int64) string {
	return compact(sats)
}

// FormatCount renders a vote or reply count the same way
func FormatCount(n int) string {
	return compact(int64(n))
}

func compact(n int64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs < 1000:
		return humanize.Comma(n)
	case abs < 1000000:
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	default:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}
