package aggregates

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
	"github.com/tidwall/gjson"
)

// ZapInfo contains parsed zap receipt information
type ZapInfo struct {
	Receipt   *nostr.Event
	TargetID  string // Event being zapped
	Sender    string // Pubkey of sender, may be empty
	Recipient string // Pubkey being zapped, may be empty
	Amount    int64  // Amount in satoshis
	Timestamp int64
}

// ParseZap extracts everything clawrank reads from a kind 9735 receipt.
// It never fails; unparseable amounts come back as zero.
func ParseZap(receipt *nostr.Event) ZapInfo {
	tags := clawstr.ParseTags(receipt.Tags)

	info := ZapInfo{
		Receipt:   receipt,
		Recipient: tags.Recipient,
		Sender:    zapSender(tags),
		Amount:    extractSats(tags),
		Timestamp: int64(receipt.CreatedAt),
	}
	if tags.Reference != nil {
		info.TargetID = tags.Reference.EventID
	}

	return info
}

// ExtractSats returns the amount of a zap receipt in whole sats.
//
// Methods are tried in order and the first that yields an amount wins:
// the amount tag (millisats), the bolt11 invoice, then the amount tag of the zap request
// embedded in the description tag.
func ExtractSats(receipt *nostr.Event) int64 {
	return extractSats(clawstr.ParseTags(receipt.Tags))
}

func extractSats(tags clawstr.Tags) int64 {
	if tags.Amount != "" {
		if msats, ok := parseMillisats(tags.Amount); ok {
			return msats / 1000
		}
	}

	if tags.Bolt11 != "" {
		if sats, ok := ParseBolt11Sats(tags.Bolt11); ok {
			return sats
		}
	}

	if tags.Description != "" {
		if raw, ok := zapRequestAmount(tags.Description); ok {
			if msats, ok := parseMillisats(raw); ok {
				return msats / 1000
			}
		}
	}

	return 0
}

// parseMillisats reads the leading decimal digits of s, ignoring trailing garbage.
// Negative and empty values are rejected so the next method gets a chance.
func parseMillisats(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// zapRequestAmount reads the first amount tag of the zap request JSON
func zapRequestAmount(description string) (string, bool) {
	if !gjson.Valid(description) {
		return "", false
	}

	var amount string
	found := false
	gjson.Get(description, "tags").ForEach(func(_, tag gjson.Result) bool {
		fields := tag.Array()
		if len(fields) >= 2 && fields[0].String() == "amount" {
			amount = fields[1].String()
			found = true
			return false
		}
		return true
	})

	return amount, found
}

// bolt11HRP matches the human-readable part of an invoice: network prefix, amount, multiplier.
// Longer network prefixes come first so bcrt is not read as bc.
var bolt11HRP = regexp.MustCompile(`^ln(?:bcrt|bc|tbs|tb|sb)(\d+)([munp]?)$`)

// ParseBolt11Sats extracts the amount in satoshis from a bolt11 invoice.
// Only the human-readable part is decoded; invoices without an amount report false.
func ParseBolt11Sats(invoice string) (int64, bool) {
	invoice = strings.ToLower(strings.TrimSpace(invoice))
	invoice = strings.TrimPrefix(invoice, "lightning:")

	// bech32 separator is the last '1'
	sep := strings.LastIndexByte(invoice, '1')
	if sep < 0 {
		return 0, false
	}

	matches := bolt11HRP.FindStringSubmatch(invoice[:sep])
	if matches == nil {
		return 0, false
	}

	amount, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, false
	}

	switch matches[2] {
	case "m": // millibitcoin = 100,000 sats
		return scaleSats(amount, 100000)
	case "u": // microbitcoin = 100 sats
		return scaleSats(amount, 100)
	case "n": // nanobitcoin = 0.1 sats
		return amount / 10, true
	case "p": // picobitcoin = 0.0001 sats
		return amount / 10000, true
	default: // no multiplier = 1 bitcoin = 100,000,000 sats
		return scaleSats(amount, 100000000)
	}
}

// scaleSats multiplies amount by multiplier, rejecting amounts that do not fit an int64
func scaleSats(amount, multiplier int64) (int64, bool) {
	if amount > math.MaxInt64/multiplier {
		return 0, false
	}
	return amount * multiplier, true
}

// ZapSender returns the sender of a zap: the P tag, else the pubkey of the embedded zap request
func ZapSender(receipt *nostr.Event) string {
	return zapSender(clawstr.ParseTags(receipt.Tags))
}

func zapSender(tags clawstr.Tags) string {
	if tags.Sender != "" {
		return tags.Sender
	}
	if tags.Description != "" && gjson.Valid(tags.Description) {
		return gjson.Get(tags.Description, "pubkey").String()
	}
	return ""
}

// ZapRecipient returns the p tag of a zap receipt
func ZapRecipient(receipt *nostr.Event) string {
	return clawstr.ParseTags(receipt.Tags).Recipient
}

// PaymentTally is the zap total for one event
type PaymentTally struct {
	Total int64 // sats
	Count int
}

// AddSats adds two non-negative sat amounts, saturating at math.MaxInt64
func AddSats(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// TallyPayments sums receipts per target. Every id in eventIDs is present in the result.
// Receipts whose amount resolves to zero still count toward Count.
func TallyPayments(eventIDs []string, receipts []*nostr.Event) map[string]PaymentTally {
	tallies := make(map[string]PaymentTally, len(eventIDs))
	for _, id := range eventIDs {
		tallies[id] = PaymentTally{}
	}

	seen := make(map[string]struct{}, len(receipts))
	for _, receipt := range receipts {
		if _, dup := seen[receipt.ID]; dup {
			continue
		}
		seen[receipt.ID] = struct{}{}

		target := clawstr.FirstReference(receipt)
		tally, ok := tallies[target]
		if !ok {
			continue
		}
		tally.Count++
		tally.Total = AddSats(tally.Total, ExtractSats(receipt))
		tallies[target] = tally
	}

	return tallies
}
