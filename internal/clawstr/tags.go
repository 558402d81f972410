package clawstr

import "github.com/nbd-wtf/go-nostr"

// Reference is the first e tag: [e, eventId, relayHint, parentAuthor]
type Reference struct {
	EventID   string
	RelayHint string
	Author    string
}

// Label is an l tag: [l, value, namespace]
type Label struct {
	Value     string
	Namespace string
}

// Tags is the typed view of an event's tag list.
//
// Single-valued fields hold the first matching tag; later duplicates are ignored.
// Namespaces and Labels keep every occurrence because agent detection looks at all of them.
// Tags clawrank does not interpret are kept untouched in Extra.
type Tags struct {
	RootScope   string // I
	RootKind    string // K
	ParentScope string // i
	ParentKind  string // k
	Reference   *Reference
	Recipient   string // p, parent author on replies, zap recipient on receipts
	Sender      string // P, zap sender on receipts

	Amount      string // amount, millisats
	Bolt11      string
	Description string // zap request JSON

	Namespaces []string // L
	Labels     []Label  // l

	Extra nostr.Tags
}

// ParseTags decodes a tag list once into a Tags record. It never fails: malformed tags
// (missing a value) are kept in Extra.
func ParseTags(tags nostr.Tags) Tags {
	var t Tags
	seen := make(map[string]bool, 8)

	first := func(key string) bool {
		if seen[key] {
			return false
		}
		seen[key] = true
		return true
	}

	for _, tag := range tags {
		if len(tag) < 2 {
			t.Extra = append(t.Extra, tag)
			continue
		}

		switch tag[0] {
		case "I":
			if first("I") {
				t.RootScope = tag[1]
			}
		case "K":
			if first("K") {
				t.RootKind = tag[1]
			}
		case "i":
			if first("i") {
				t.ParentScope = tag[1]
			}
		case "k":
			if first("k") {
				t.ParentKind = tag[1]
			}
		case "e":
			if first("e") {
				ref := &Reference{EventID: tag[1]}
				if len(tag) >= 3 {
					ref.RelayHint = tag[2]
				}
				if len(tag) >= 4 {
					ref.Author = tag[3]
				}
				t.Reference = ref
			}
		case "p":
			if first("p") {
				t.Recipient = tag[1]
			}
		case "P":
			if first("P") {
				t.Sender = tag[1]
			}
		case "amount":
			if first("amount") {
				t.Amount = tag[1]
			}
		case "bolt11":
			if first("bolt11") {
				t.Bolt11 = tag[1]
			}
		case "description":
			if first("description") {
				t.Description = tag[1]
			}
		case "L":
			t.Namespaces = append(t.Namespaces, tag[1])
		case "l":
			label := Label{Value: tag[1]}
			if len(tag) >= 3 {
				label.Namespace = tag[2]
			}
			t.Labels = append(t.Labels, label)
		default:
			t.Extra = append(t.Extra, tag)
		}
	}

	return t
}

// HasAgentLabel reports whether both the agent namespace tag and the ai label under that
// namespace are present. Either one alone is not enough.
func (t Tags) HasAgentLabel() bool {
	hasNamespace := false
	for _, ns := range t.Namespaces {
		if ns == AgentNamespace {
			hasNamespace = true
			break
		}
	}
	if !hasNamespace {
		return false
	}

	for _, l := range t.Labels {
		if l.Value == AgentLabel && l.Namespace == AgentNamespace {
			return true
		}
	}
	return false
}

// FirstReference returns the event id of the first e tag without decoding the rest
func FirstReference(event *nostr.Event) string {
	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == "e" {
			return tag[1]
		}
	}
	return ""
}

// AgentLabelTags returns the NIP-32 tags that mark content as agent-authored
func AgentLabelTags() nostr.Tags {
	return nostr.Tags{
		{"L", AgentNamespace},
		{"l", AgentLabel, AgentNamespace},
	}
}

// PostTags returns the tags of a top-level post in community
func PostTags(community string) nostr.Tags {
	identifier := EncodeScope(community)
	tags := nostr.Tags{
		{"I", identifier},
		{"K", WebKind},
		{"i", identifier},
		{"k", WebKind},
	}
	return append(tags, AgentLabelTags()...)
}

// ReplyTags returns the tags of a reply to parent in community
func ReplyTags(community string, parent *nostr.Event) nostr.Tags {
	identifier := EncodeScope(community)
	tags := nostr.Tags{
		{"I", identifier},
		{"K", WebKind},
		{"e", parent.ID, "", parent.PubKey},
		{"k", ReplyKind},
		{"p", parent.PubKey},
	}
	return append(tags, AgentLabelTags()...)
}
