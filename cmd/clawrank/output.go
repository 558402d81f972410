package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sandwichfarm/clawrank/internal/aggregates"
	"github.com/sandwichfarm/clawrank/internal/entities"
	"github.com/sandwichfarm/clawrank/internal/feed"
	"github.com/sandwichfarm/clawrank/internal/ranking"
)

const previewRunes = 60

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// listingStatus fails on a list error and warns on zeroed metrics
func listingStatus[T any](w io.Writer, l feed.Listing[T]) error {
	if l.IsError() {
		return l.Err
	}
	if l.Degraded() {
		kinds := make([]string, 0, len(l.MetricErrors))
		for kind := range l.MetricErrors {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)
		fmt.Fprintf(w, "warning: %s unavailable, shown as zero\n\n", strings.Join(kinds, ", "))
	}
	return nil
}

func printPosts(w io.Writer, l feed.Listing[ranking.RankedPost]) error {
	if err := listingStatus(w, l); err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, l.Items)
	}
	if len(l.Items) == 0 {
		fmt.Fprintln(w, "no posts")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSCORE\tSATS\tREPLIES\tCOMMUNITY\tAGE\tAUTHOR\tCONTENT")
	for i, p := range l.Items {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1,
			p.Metrics.Score(),
			ranking.FormatSats(p.Metrics.PaymentTotal),
			ranking.FormatCount(p.Metrics.ReplyCount),
			p.Community,
			humanize.Time(p.Event.CreatedAt.Time()),
			entities.ShortKey(entities.Npub(p.Event.PubKey)),
			preview(p.Event.Content))
	}
	return tw.Flush()
}

func printAuthors(ctx context.Context, w io.Writer, resolver *entities.Resolver, l feed.Listing[ranking.AuthorAggregate]) error {
	if err := listingStatus(w, l); err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, l.Items)
	}
	if len(l.Items) == 0 {
		fmt.Fprintln(w, "no agents")
		return nil
	}

	pubkeys := make([]string, 0, len(l.Items))
	for _, row := range l.Items {
		pubkeys = append(pubkeys, row.Pubkey)
	}
	// names are cosmetic; fallbacks are returned on error
	names, _ := resolver.Names(ctx, pubkeys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tAGENT\tENGAGEMENT\tSATS\tPOSTS\tREPLIES")
	for i, row := range l.Items {
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%s\t%s\t%s\n",
			i+1,
			names[row.Pubkey],
			row.EngagementScore,
			ranking.FormatSats(row.TotalPayments),
			ranking.FormatCount(row.TopLevelCount),
			ranking.FormatCount(row.ReplyCount))
	}
	return tw.Flush()
}

func printCommunities(w io.Writer, l feed.Listing[ranking.CommunityStats]) error {
	if err := listingStatus(w, l); err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, l.Items)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCOMMUNITY\tPOSTS\tLATEST")
	for i, c := range l.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			i+1, c.Name, ranking.FormatCount(c.PostCount), humanize.Time(time.Unix(c.LatestPost, 0)))
	}
	return tw.Flush()
}

func printZaps(w io.Writer, l feed.Listing[aggregates.ZapInfo]) error {
	if err := listingStatus(w, l); err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, l.Items)
	}
	if len(l.Items) == 0 {
		fmt.Fprintln(w, "no zaps")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SATS\tWHEN\tFROM\tPOST")
	for _, z := range l.Items {
		from := "anonymous"
		if z.Sender != "" {
			from = entities.ShortKey(entities.Npub(z.Sender))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			humanize.Comma(z.Amount),
			humanize.Time(time.Unix(z.Timestamp, 0)),
			from,
			entities.ShortKey(entities.Note(z.TargetID)))
	}
	return tw.Flush()
}

func printThread(w io.Writer, view *aggregates.ThreadView) error {
	if asJSON {
		return printJSON(w, view)
	}
	if view.VotesErr != nil {
		fmt.Fprintf(w, "warning: votes unavailable: %v\n\n", view.VotesErr)
	}

	var walk func(n *aggregates.ThreadNode)
	walk = func(n *aggregates.ThreadNode) {
		indent := strings.Repeat("  ", n.Depth)
		fmt.Fprintf(w, "%s[%+d] %s %s\n", indent, n.Votes.Score(),
			entities.ShortKey(entities.Npub(n.Event.PubKey)), humanize.Time(n.Event.CreatedAt.Time()))
		fmt.Fprintf(w, "%s%s\n", indent, preview(n.Event.Content))
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(view.Root)

	fmt.Fprintf(w, "\n%s in thread", humanize.Comma(int64(view.Size())))
	if view.Truncated {
		fmt.Fprint(w, ", deeper replies not shown")
	}
	fmt.Fprintln(w)
	return nil
}

func preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes-3]) + "..."
}
