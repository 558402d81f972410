// Package entities converts between hex keys and NIP-19 identifiers and resolves author display
// names from profile metadata.
package entities

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/puzpuzpuz/xsync/v3"
	nostrclient "github.com/sandwichfarm/clawrank/internal/nostr"
	"github.com/tidwall/gjson"
)

const kindProfile = 0

// ParseEventID accepts a hex event id, note1 or nevent1, with or without the nostr: prefix
func ParseEventID(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "nostr:")
	if isHex32(s) {
		return strings.ToLower(s), nil
	}

	prefix, decoded, err := nip19.Decode(s)
	if err != nil {
		return "", fmt.Errorf("invalid event id %q: %w", s, err)
	}

	switch v := decoded.(type) {
	case string:
		if prefix == "note" {
			return v, nil
		}
	case nostr.EventPointer:
		return v.ID, nil
	case *nostr.EventPointer:
		return v.ID, nil
	}
	return "", fmt.Errorf("%s is not an event reference", prefix)
}

// ParsePubkey accepts a hex public key, npub1 or nprofile1, with or without the nostr: prefix
func ParsePubkey(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "nostr:")
	if isHex32(s) {
		return strings.ToLower(s), nil
	}

	prefix, decoded, err := nip19.Decode(s)
	if err != nil {
		return "", fmt.Errorf("invalid public key %q: %w", s, err)
	}

	switch v := decoded.(type) {
	case string:
		if prefix == "npub" {
			return v, nil
		}
	case nostr.ProfilePointer:
		return v.PublicKey, nil
	case *nostr.ProfilePointer:
		return v.PublicKey, nil
	}
	return "", fmt.Errorf("%s is not a profile reference", prefix)
}

// Npub encodes pubkey for display, falling back to the shortened hex form
func Npub(pubkey string) string {
	if !isHex32(pubkey) {
		return ShortKey(pubkey)
	}
	npub, err := nip19.EncodePublicKey(pubkey)
	if err != nil {
		return ShortKey(pubkey)
	}
	return npub
}

// Note encodes an event id for display, falling back to the shortened hex form
func Note(id string) string {
	if !isHex32(id) {
		return ShortKey(id)
	}
	note, err := nip19.EncodeNote(id)
	if err != nil {
		return ShortKey(id)
	}
	return note
}

// ShortKey abbreviates a long key to its first and last eight characters
func ShortKey(key string) string {
	if len(key) <= 16 {
		return key
	}
	return key[:8] + "..." + key[len(key)-8:]
}

func isHex32(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Resolver looks up display names from kind 0 profiles and remembers them
type Resolver struct {
	querier nostrclient.Querier
	names   *xsync.MapOf[string, string]
}

// NewResolver creates a resolver reading profiles through querier
func NewResolver(querier nostrclient.Querier) *Resolver {
	return &Resolver{
		querier: querier,
		names:   xsync.NewMapOf[string, string](),
	}
}

// Names resolves every pubkey with a single profile query. Pubkeys without a usable profile map
// to their shortened npub. Query failures are not fatal; the fallback names are returned.
func (r *Resolver) Names(ctx context.Context, pubkeys []string) (map[string]string, error) {
	out := make(map[string]string, len(pubkeys))
	missing := make([]string, 0)
	for _, pk := range pubkeys {
		if name, ok := r.names.Load(pk); ok {
			out[pk] = name
			continue
		}
		if _, dup := out[pk]; !dup {
			missing = append(missing, pk)
			out[pk] = ShortKey(Npub(pk))
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	profiles, err := r.querier.QueryEvents(ctx, nostr.Filter{
		Kinds:   []int{kindProfile},
		Authors: missing,
		Limit:   len(missing),
	})
	if err != nil {
		return out, fmt.Errorf("profile query failed: %w", err)
	}

	// newest first, so the first profile seen per author wins
	nostrclient.SortNewestFirst(profiles)
	resolved := make(map[string]bool, len(profiles))
	for _, profile := range profiles {
		if resolved[profile.PubKey] {
			continue
		}
		resolved[profile.PubKey] = true
		if name := DisplayName(profile.Content); name != "" {
			out[profile.PubKey] = name
			r.names.Store(profile.PubKey, name)
		}
	}

	return out, nil
}

// DisplayName picks display_name, then name, then nip05 from profile metadata JSON
func DisplayName(metadata string) string {
	if !gjson.Valid(metadata) {
		return ""
	}
	for _, field := range []string{"display_name", "name", "nip05"} {
		if v := strings.TrimSpace(gjson.Get(metadata, field).String()); v != "" {
			return v
		}
	}
	return ""
}
