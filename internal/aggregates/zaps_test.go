package aggregates

import (
	"math"
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

const zapRequest = `{"kind":9734,"pubkey":"sender-from-request","content":"","tags":[["relays","wss://relay.example"],["amount","42000"],["e","target"]]}`

func TestExtractSats(t *testing.T) {
	tests := []struct {
		name string
		tags nostr.Tags
		want int64
	}{
		{
			name: "amount tag in millisats",
			tags: nostr.Tags{{"amount", "21000"}},
			want: 21,
		},
		{
			name: "amount tag floors",
			tags: nostr.Tags{{"amount", "21999"}},
			want: 21,
		},
		{
			name: "amount tag wins over bolt11",
			tags: nostr.Tags{{"bolt11", "lnbc10u1pjxyz"}, {"amount", "5000"}},
			want: 5,
		},
		{
			name: "bolt11 micro",
			tags: nostr.Tags{{"bolt11", "lnbc10u1pjxyzabc"}},
			want: 1000,
		},
		{
			name: "bolt11 milli",
			tags: nostr.Tags{{"bolt11", "lnbc2m1pjxyzabc"}},
			want: 200000,
		},
		{
			name: "bolt11 nano",
			tags: nostr.Tags{{"bolt11", "lnbc2500n1pjxyzabc"}},
			want: 250,
		},
		{
			name: "bolt11 pico",
			tags: nostr.Tags{{"bolt11", "lnbc10000p1pjxyzabc"}},
			want: 1,
		},
		{
			name: "bolt11 without amount",
			tags: nostr.Tags{{"bolt11", "lnbc1pjxyzabc"}},
			want: 0,
		},
		{
			name: "unparseable amount falls through to bolt11",
			tags: nostr.Tags{{"amount", "lots"}, {"bolt11", "lnbc10u1pjxyzabc"}},
			want: 1000,
		},
		{
			name: "invoice without amount falls through to description",
			tags: nostr.Tags{{"bolt11", "lnbc1pjxyzabc"}, {"description", zapRequest}},
			want: 42,
		},
		{
			name: "description only",
			tags: nostr.Tags{{"description", zapRequest}},
			want: 42,
		},
		{
			name: "malformed description",
			tags: nostr.Tags{{"description", "{not json"}},
			want: 0,
		},
		{
			name: "negative amount falls through",
			tags: nostr.Tags{{"amount", "-5000"}, {"description", zapRequest}},
			want: 42,
		},
		{
			name: "nothing to read",
			tags: nostr.Tags{{"e", "target"}},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSats(&nostr.Event{Kind: 9735, Tags: tt.tags})
			if got != tt.want {
				t.Errorf("ExtractSats() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseBolt11Sats(t *testing.T) {
	tests := []struct {
		invoice string
		want    int64
		wantOK  bool
	}{
		{"lnbc10u1pjxyz", 1000, true},
		{"LNBC10U1PJXYZ", 1000, true},
		{"lightning:lnbc10u1pjxyz", 1000, true},
		{"lntb500u1pjxyz", 50000, true},
		{"lnbcrt2m1pjxyz", 200000, true},
		{"lnbc210000001pjxyz", 2100000000000000, true},
		{"lnbc1000000000001pjxyz", 0, false},
		{"lnbc922337203681pjxyz", 9223372036800000000, true},
		{"lnbc92233720368547758m1pjxyz", 0, false},
		{"lnbc99999999999999999999u1pjxyz", 0, false},
		{"lnbc1pjxyz", 0, false},
		{"not an invoice", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.invoice, func(t *testing.T) {
			got, ok := ParseBolt11Sats(tt.invoice)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseBolt11Sats(%q) = (%d, %v), want (%d, %v)", tt.invoice, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestZapSenderAndRecipient(t *testing.T) {
	withP := &nostr.Event{Tags: nostr.Tags{
		{"p", "recipient"},
		{"P", "sender"},
		{"description", zapRequest},
	}}
	if got := ZapSender(withP); got != "sender" {
		t.Errorf("ZapSender() = %q, want sender", got)
	}
	if got := ZapRecipient(withP); got != "recipient" {
		t.Errorf("ZapRecipient() = %q, want recipient", got)
	}

	fallback := &nostr.Event{Tags: nostr.Tags{
		{"p", "recipient"},
		{"description", zapRequest},
	}}
	if got := ZapSender(fallback); got != "sender-from-request" {
		t.Errorf("ZapSender() fallback = %q, want sender-from-request", got)
	}

	none := &nostr.Event{Tags: nostr.Tags{{"p", "recipient"}}}
	if got := ZapSender(none); got != "" {
		t.Errorf("ZapSender() = %q, want empty", got)
	}
}

func TestTallyPayments(t *testing.T) {
	receipts := []*nostr.Event{
		receipt("z1", "a", 10, nostr.Tag{"amount", "21000"}),
		receipt("z2", "a", 11, nostr.Tag{"bolt11", "lnbc10u1pjxyz"}),
		receipt("z3", "a", 12),                                   // zero amount still counted
		receipt("z1", "a", 10, nostr.Tag{"amount", "21000"}),     // duplicate delivery
		receipt("z4", "unknown", 13, nostr.Tag{"amount", "1000"}), // not requested
	}

	tallies := TallyPayments([]string{"a", "b"}, receipts)

	if len(tallies) != 2 {
		t.Fatalf("expected exactly the requested ids, got %v", tallies)
	}
	if got := tallies["a"]; got.Total != 1021 || got.Count != 3 {
		t.Errorf("tally a = %+v, want total 1021 count 3", got)
	}
	if got := tallies["b"]; got.Total != 0 || got.Count != 0 {
		t.Errorf("tally b = %+v, want zero", got)
	}
}

func TestTallyPayments_Saturates(t *testing.T) {
	receipts := []*nostr.Event{
		receipt("z1", "a", 10, nostr.Tag{"bolt11", "lnbc922337203681pjxyz"}),
		receipt("z2", "a", 11, nostr.Tag{"bolt11", "lnbc922337203681pjxyz"}),
		receipt("z3", "a", 12, nostr.Tag{"bolt11", "lnbc1000000000001pjxyz"}),
	}

	got := TallyPayments([]string{"a"}, receipts)["a"]
	if got.Total != math.MaxInt64 || got.Count != 3 {
		t.Errorf("tally = %+v, want total capped at MaxInt64 over 3 receipts", got)
	}
}

func TestParseZap(t *testing.T) {
	ev := receipt("z1", "post-1", 1234, nostr.Tag{"P", "sender"}, nostr.Tag{"amount", "100000"})

	zap := ParseZap(ev)
	if zap.TargetID != "post-1" || zap.Sender != "sender" || zap.Recipient != "recipient-post-1" {
		t.Errorf("ParseZap() = %+v", zap)
	}
	if zap.Amount != 100 || zap.Timestamp != 1234 {
		t.Errorf("ParseZap() amount/timestamp = %d/%d", zap.Amount, zap.Timestamp)
	}
}
