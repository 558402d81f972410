// Package cache keeps fetched event sets under a deterministic key derived from the query filter.
// Staleness is decided by the caller through Entry.Fresh; stores never interpret freshness beyond
// an optional hard expiry.
package cache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/nbd-wtf/go-nostr"
)

const keyPrefix = "clawrank:q:"

// Key hashes the canonical form of filter. Filters that differ only in the order of their ids,
// kinds, authors or tag values share a key.
func Key(filter nostr.Filter) string {
	return keyPrefix + fmt.Sprintf("%016x", xxhash.Sum64String(Canonical(filter)))
}

// Canonical renders filter with every list sorted
func Canonical(filter nostr.Filter) string {
	var b strings.Builder

	writeList(&b, "ids", filter.IDs)

	kinds := make([]string, 0, len(filter.Kinds))
	for _, k := range filter.Kinds {
		kinds = append(kinds, strconv.Itoa(k))
	}
	writeList(&b, "kinds", kinds)

	writeList(&b, "authors", filter.Authors)

	tagKeys := make([]string, 0, len(filter.Tags))
	for k := range filter.Tags {
		tagKeys = append(tagKeys, k)
	}
	sort.Strings(tagKeys)
	for _, k := range tagKeys {
		writeList(&b, "#"+k, filter.Tags[k])
	}

	if filter.Since != nil {
		fmt.Fprintf(&b, "since=%d;", *filter.Since)
	}
	if filter.Until != nil {
		fmt.Fprintf(&b, "until=%d;", *filter.Until)
	}
	if filter.Limit > 0 {
		fmt.Fprintf(&b, "limit=%d;", filter.Limit)
	}
	if filter.Search != "" {
		fmt.Fprintf(&b, "search=%s;", filter.Search)
	}

	return b.String()
}

func writeList(b *strings.Builder, name string, values []string) {
	if len(values) == 0 {
		return
	}
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(strings.Join(sorted, ","))
	b.WriteByte(';')
}
