package aggregates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
	nostrclient "github.com/sandwichfarm/clawrank/internal/nostr"
	"github.com/sandwichfarm/clawrank/internal/ops"
)

// ThreadNode is one comment in a reply tree
type ThreadNode struct {
	Event    *nostr.Event
	Votes    VoteTally
	Depth    int
	Children []*ThreadNode
}

// ThreadView is a post with its replies
type ThreadView struct {
	Root *ThreadNode
	// Truncated is set when replies exist below the depth limit
	Truncated bool
	// VotesErr is set when vote tallies could not be fetched; all tallies are zero then
	VotesErr error
}

// Size returns the number of nodes in the tree, root included
func (tv *ThreadView) Size() int {
	if tv == nil || tv.Root == nil {
		return 0
	}
	n := 0
	walk(tv.Root, func(*ThreadNode) { n++ })
	return n
}

func walk(node *ThreadNode, fn func(*ThreadNode)) {
	fn(node)
	for _, child := range node.Children {
		walk(child, fn)
	}
}

// Threads builds reply trees one level at a time, one query per level
type Threads struct {
	querier  nostrclient.Querier
	filters  *FilterBuilder
	votes    *Aggregator
	maxDepth int
	timeout  time.Duration
	logger   *ops.Logger
}

// NewThreads creates a thread builder. Levels deeper than maxDepth are not fetched.
func NewThreads(querier nostrclient.Querier, filters *FilterBuilder, votes *Aggregator, maxDepth int, timeout time.Duration, logger *ops.Logger) *Threads {
	if logger == nil {
		logger = ops.Default()
	}
	return &Threads{
		querier:  querier,
		filters:  filters,
		votes:    votes,
		maxDepth: maxDepth,
		timeout:  timeout,
		logger:   logger.WithComponent("threads"),
	}
}

// WithShowAll returns a thread builder with a different agent-only toggle
func (t *Threads) WithShowAll(showAll bool) *Threads {
	if t.filters.ShowAll() == showAll {
		return t
	}
	clone := *t
	clone.filters = t.filters.WithShowAll(showAll)
	clone.votes = t.votes.WithShowAll(showAll)
	return &clone
}

// Thread fetches the replies under root. A failing level query fails the whole thread; a failing
// vote query only zeroes the tallies.
func (t *Threads) Thread(ctx context.Context, root *nostr.Event) (*ThreadView, error) {
	if root == nil {
		return nil, fmt.Errorf("thread root is nil")
	}

	rootNode := &ThreadNode{Event: root}
	nodes := map[string]*ThreadNode{root.ID: rootNode}
	frontier := []string{root.ID}
	view := &ThreadView{Root: rootNode}

	for depth := 1; len(frontier) > 0; depth++ {
		start := time.Now()
		filter := t.filters.BuildRepliesFilter(frontier)
		replies, err := nostrclient.WithTimeout(t.querier, t.timeout).QueryEvents(ctx, filter)
		t.logger.LogQuery("thread-level", filter.Kinds, len(replies), time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch replies at depth %d: %w", depth, err)
		}

		if depth > t.maxDepth {
			for _, reply := range replies {
				if t.filters.Accepts(reply) {
					view.Truncated = true
					break
				}
			}
			break
		}

		next := make([]string, 0)
		for _, reply := range replies {
			if _, dup := nodes[reply.ID]; dup {
				continue
			}
			if !t.filters.Accepts(reply) {
				continue
			}

			parent, ok := nodes[clawstr.FirstReference(reply)]
			if !ok {
				continue
			}

			node := &ThreadNode{Event: reply, Depth: depth}
			nodes[reply.ID] = node
			parent.Children = append(parent.Children, node)
			next = append(next, reply.ID)
		}

		frontier = next
	}

	sortThreadNodes(rootNode)

	if t.votes != nil {
		ids := make([]string, 0, len(nodes))
		walk(rootNode, func(n *ThreadNode) { ids = append(ids, n.Event.ID) })

		tallies, err := t.votes.Reactions(ctx, ids)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			view.VotesErr = err
		}
		walk(rootNode, func(n *ThreadNode) { n.Votes = tallies[n.Event.ID] })
	}

	return view, nil
}

// sortThreadNodes orders children chronologically, recursively
func sortThreadNodes(node *ThreadNode) {
	if node == nil {
		return
	}

	sort.SliceStable(node.Children, func(i, j int) bool {
		a, b := node.Children[i].Event, node.Children[j].Event
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})

	for _, child := range node.Children {
		sortThreadNodes(child)
	}
}
