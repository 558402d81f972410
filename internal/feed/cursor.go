package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/clawrank/internal/clawstr"
)

// ErrFetchInProgress is returned when a page is requested while the previous one is still loading
var ErrFetchInProgress = errors.New("a page fetch is already in progress")

// PageFetcher returns one raw page of events created at or before until, newest first.
// until == 0 asks for the newest page.
type PageFetcher func(ctx context.Context, until int64, limit int) ([]*nostr.Event, error)

// Page is one fetched page of the infinite feed
type Page struct {
	// Until is the cursor the page was requested with, 0 for the newest page
	Until int64
	// Next is the cursor of the following page, 0 when this was the last one
	Next  int64
	Raw   int
	Items []clawstr.Classified
}

// NextCursor derives the cursor of the page after raw: one second below its oldest event, and
// always strictly below prev when prev is set. ok is false when no further page exists.
func NextCursor(raw []*nostr.Event, prev int64) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	oldest := int64(raw[0].CreatedAt)
	for _, ev := range raw[1:] {
		if created := int64(ev.CreatedAt); created < oldest {
			oldest = created
		}
	}

	next := oldest - 1
	// a source that ignores until would otherwise hand back the same page forever
	if prev > 0 && next >= prev {
		next = prev - 1
	}
	if next <= 0 {
		return 0, false
	}
	return next, true
}

// Flatten concatenates pages, keeping the first occurrence of every event id
func Flatten(pages []Page) []clawstr.Classified {
	seen := make(map[string]struct{})
	out := make([]clawstr.Classified, 0)
	for _, page := range pages {
		for _, item := range page.Items {
			if _, dup := seen[item.Event.ID]; dup {
				continue
			}
			seen[item.Event.ID] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// Pager walks a descending-time source page by page
type Pager struct {
	fetch PageFetcher
	keep  func([]*nostr.Event) []clawstr.Classified
	limit int

	mu       sync.Mutex
	pages    []Page
	next     int64
	done     bool
	fetching bool
}

// NewPager creates a pager starting at until (0 for the newest page). keep selects the items
// shown from each raw page; the cursor always follows the raw page.
func NewPager(fetch PageFetcher, keep func([]*nostr.Event) []clawstr.Classified, limit int, until int64) *Pager {
	return &Pager{
		fetch: fetch,
		keep:  keep,
		limit: limit,
		next:  until,
	}
}

// FetchNextPage loads the next page. Once the source is exhausted it returns an empty page and
// no error. A failed fetch leaves the cursor where it was so it can be retried.
func (p *Pager) FetchNextPage(ctx context.Context) (Page, error) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return Page{}, nil
	}
	if p.fetching {
		p.mu.Unlock()
		return Page{}, ErrFetchInProgress
	}
	p.fetching = true
	until := p.next
	p.mu.Unlock()

	raw, err := p.fetch(ctx, until, p.limit)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetching = false

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return Page{}, err
	}

	next, more := NextCursor(raw, until)
	if len(raw) == 0 {
		p.done = true
		return Page{Until: until}, nil
	}

	page := Page{
		Until: until,
		Next:  next,
		Raw:   len(raw),
		Items: p.keep(raw),
	}
	p.pages = append(p.pages, page)
	p.next = next
	p.done = !more

	return page, nil
}

// HasNextPage reports whether another page may exist
func (p *Pager) HasNextPage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.done
}

// IsFetchingNextPage reports whether a fetch is in flight
func (p *Pager) IsFetchingNextPage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetching
}

// NextCursor returns the cursor the next fetch will use, 0 once exhausted or before the first page
func (p *Pager) NextCursor() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return 0
	}
	return p.next
}

// Items returns every item fetched so far, deduplicated, in page order
func (p *Pager) Items() []clawstr.Classified {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Flatten(p.pages)
}

// Pages returns the number of non-empty pages fetched
func (p *Pager) Pages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pages)
}
