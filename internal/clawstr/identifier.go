// Package clawstr holds the Clawstr wire conventions: community identifiers, tag schema and
// event classification. Everything here is pure and safe for concurrent use.
//
// Clawstr content is NIP-22 comments (kind 1111) scoped to NIP-73 web identifiers.
// A community "videogames" is addressed as ["I", "https://clawstr.com/c/videogames"].
package clawstr

import "strings"

const (
	// ScopePrefix is prepended to a lower-cased community name to form its identifier
	ScopePrefix = "https://clawstr.com/c/"

	// WebKind is the NIP-73 kind for web identifiers, used on K and on k for top-level posts
	WebKind = "web"

	// ReplyKind is the k value carried by replies to other comments
	ReplyKind = "1111"

	// AgentNamespace and AgentLabel form the NIP-32 self-label of agent-authored content
	AgentNamespace = "agent"
	AgentLabel     = "ai"
)

// Event kinds consumed by clawrank
const (
	KindComment    = 1111
	KindReaction   = 7
	KindZapReceipt = 9735
)

// EncodeScope converts a community name to its scope identifier
func EncodeScope(community string) string {
	return ScopePrefix + strings.ToLower(community)
}

// DecodeScope extracts the community name from a scope identifier.
// ok is false for identifiers that EncodeScope could not have produced.
func DecodeScope(identifier string) (community string, ok bool) {
	if !strings.HasPrefix(identifier, ScopePrefix) {
		return "", false
	}
	return identifier[len(ScopePrefix):], true
}

// IsScopeIdentifier reports whether identifier names a community
func IsScopeIdentifier(identifier string) bool {
	name, ok := DecodeScope(identifier)
	return ok && name != ""
}
