package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sandwichfarm/clawrank/internal/aggregates"
	"github.com/sandwichfarm/clawrank/internal/entities"
	"github.com/sandwichfarm/clawrank/internal/feed"
	"github.com/sandwichfarm/clawrank/internal/ranking"
)

type listingResponse[T any] struct {
	Items            []T               `json:"items"`
	Stage            string            `json:"stage"`
	IsLoading        bool              `json:"is_loading"`
	IsMetricsLoading bool              `json:"is_metrics_loading"`
	IsError          bool              `json:"is_error"`
	Error            string            `json:"error,omitempty"`
	MetricErrors     map[string]string `json:"metric_errors,omitempty"`
	NextCursor       *int64            `json:"next_cursor,omitempty"`
	HasNextPage      *bool             `json:"has_next_page,omitempty"`
}

func renderListing[T, R any](l feed.Listing[T], convert func(T) R) listingResponse[R] {
	items := make([]R, 0, len(l.Items))
	for _, item := range l.Items {
		items = append(items, convert(item))
	}

	resp := listingResponse[R]{
		Items:            items,
		Stage:            l.Stage.String(),
		IsLoading:        l.IsLoading(),
		IsMetricsLoading: l.IsMetricsLoading(),
		IsError:          l.IsError(),
	}
	if l.Err != nil {
		resp.Error = l.Err.Error()
	}
	if l.Degraded() {
		resp.MetricErrors = make(map[string]string, len(l.MetricErrors))
		for kind, err := range l.MetricErrors {
			resp.MetricErrors[string(kind)] = err.Error()
		}
	}
	return resp
}

type postJSON struct {
	ID        string              `json:"id"`
	Note      string              `json:"note"`
	Pubkey    string              `json:"pubkey"`
	Npub      string              `json:"npub"`
	Community string              `json:"community,omitempty"`
	Content   string              `json:"content"`
	CreatedAt int64               `json:"created_at"`
	Metrics   *aggregates.Metrics `json:"metrics,omitempty"`
	Score     int                 `json:"score"`
	HotScore  float64             `json:"hot_score"`
}

func renderPost(p ranking.RankedPost) postJSON {
	return postJSON{
		ID:        p.Event.ID,
		Note:      entities.Note(p.Event.ID),
		Pubkey:    p.Event.PubKey,
		Npub:      entities.Npub(p.Event.PubKey),
		Community: p.Community,
		Content:   p.Event.Content,
		CreatedAt: int64(p.Event.CreatedAt),
		Metrics:   &p.Metrics,
		Score:     p.Metrics.Score(),
		HotScore:  p.HotScore,
	}
}

type authorJSON struct {
	ranking.AuthorAggregate
	Npub string `json:"npub"`
}

func renderAuthor(a ranking.AuthorAggregate) authorJSON {
	return authorJSON{AuthorAggregate: a, Npub: entities.Npub(a.Pubkey)}
}

func renderCommunity(c ranking.CommunityStats) ranking.CommunityStats {
	return c
}

type zapJSON struct {
	ID        string `json:"id"`
	TargetID  string `json:"target_id"`
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Amount    int64  `json:"amount"` // sats
	Timestamp int64  `json:"timestamp"`
}

func renderZap(z aggregates.ZapInfo) zapJSON {
	return zapJSON{
		ID:        z.Receipt.ID,
		TargetID:  z.TargetID,
		Sender:    z.Sender,
		Recipient: z.Recipient,
		Amount:    z.Amount,
		Timestamp: z.Timestamp,
	}
}

type threadNodeJSON struct {
	ID        string           `json:"id"`
	Pubkey    string           `json:"pubkey"`
	Npub      string           `json:"npub"`
	Content   string           `json:"content"`
	CreatedAt int64            `json:"created_at"`
	Depth     int              `json:"depth"`
	Upvotes   int              `json:"upvotes"`
	Downvotes int              `json:"downvotes"`
	Score     int              `json:"score"`
	Replies   []threadNodeJSON `json:"replies"`
}

type threadJSON struct {
	Root       threadNodeJSON `json:"root"`
	Size       int            `json:"size"`
	Truncated  bool           `json:"truncated"`
	VotesError string         `json:"votes_error,omitempty"`
}

func renderThread(view *aggregates.ThreadView) threadJSON {
	resp := threadJSON{
		Root:      renderNode(view.Root),
		Size:      view.Size(),
		Truncated: view.Truncated,
	}
	if view.VotesErr != nil {
		resp.VotesError = view.VotesErr.Error()
	}
	return resp
}

func renderNode(n *aggregates.ThreadNode) threadNodeJSON {
	node := threadNodeJSON{
		ID:        n.Event.ID,
		Pubkey:    n.Event.PubKey,
		Npub:      entities.Npub(n.Event.PubKey),
		Content:   n.Event.Content,
		CreatedAt: int64(n.Event.CreatedAt),
		Depth:     n.Depth,
		Upvotes:   n.Votes.Upvotes,
		Downvotes: n.Votes.Downvotes,
		Score:     n.Votes.Score(),
		Replies:   make([]threadNodeJSON, 0, len(n.Children)),
	}
	for _, child := range n.Children {
		node.Replies = append(node.Replies, renderNode(child))
	}
	return node
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"is_error": true, "error": message})
}
