// Package feed assembles the Clawstr listings: it fetches candidates, hands them to the caller
// straight away and fills in engagement metrics as they arrive.
package feed

import (
	"time"

	"github.com/sandwichfarm/clawrank/internal/aggregates"
)

// Stage is how far a listing has progressed
type Stage int

const (
	// Pending means the candidate list has not resolved yet
	Pending Stage = iota
	// Partial means the list is available and metrics are still loading
	Partial
	// Complete means nothing more will arrive for this listing
	Complete
)

func (s Stage) String() string {
	switch s {
	case Partial:
		return "partial"
	case Complete:
		return "complete"
	default:
		return "pending"
	}
}

// Listing is one snapshot of a staged result
type Listing[T any] struct {
	Stage Stage
	Items []T
	// Err is set when the candidate list itself failed
	Err error
	// MetricErrors holds the metric kinds that failed; their values are zero in Items
	MetricErrors map[aggregates.MetricKind]error
}

// IsLoading reports whether the list has not resolved yet
func (l Listing[T]) IsLoading() bool {
	return l.Stage == Pending
}

// IsMetricsLoading reports whether the list is shown while metrics are still on the way
func (l Listing[T]) IsMetricsLoading() bool {
	return l.Stage == Partial
}

// IsError reports whether the list failed. An empty list with IsError false is a real empty result.
func (l Listing[T]) IsError() bool {
	return l.Err != nil
}

// Degraded reports whether some metric kinds failed and were zeroed
func (l Listing[T]) Degraded() bool {
	return len(l.MetricErrors) > 0
}

// Final drains ch and returns the last snapshot. A channel closed without any snapshot, which is
// what a cancelled request produces, yields a Pending listing.
func Final[T any](ch <-chan Listing[T]) Listing[T] {
	var last Listing[T]
	for l := range ch {
		last = l
	}
	return last
}

// Within waits for the first snapshot, then up to wait for the listing to complete, and returns
// whatever it has by then. The channel is drained in the background when Within gives up early.
func Within[T any](ch <-chan Listing[T], wait time.Duration) Listing[T] {
	last, ok := <-ch
	if !ok {
		return Listing[T]{}
	}
	if last.Stage == Complete {
		go drain(ch)
		return last
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case l, ok := <-ch:
			if !ok {
				return last
			}
			last = l
			if last.Stage == Complete {
				go drain(ch)
				return last
			}
		case <-timer.C:
			go drain(ch)
			return last
		}
	}
}

func drain[T any](ch <-chan Listing[T]) {
	for range ch {
	}
}

// completed wraps a synchronous result as a finished listing
func completed[T any](items []T, err error) Listing[T] {
	if items == nil {
		items = []T{}
	}
	return Listing[T]{Stage: Complete, Items: items, Err: err}
}
