package feed

import (
	"testing"
	"time"
)

func TestListingFlags(t *testing.T) {
	tests := []struct {
		name           string
		listing        Listing[int]
		loading        bool
		metricsLoading bool
		isError        bool
	}{
		{"pending", Listing[int]{}, true, false, false},
		{"partial", Listing[int]{Stage: Partial, Items: []int{1}}, false, true, false},
		{"complete", Listing[int]{Stage: Complete, Items: []int{1}}, false, false, false},
		{"failed", Listing[int]{Stage: Complete, Err: errRelayDown}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := tt.listing
			if l.IsLoading() != tt.loading || l.IsMetricsLoading() != tt.metricsLoading || l.IsError() != tt.isError {
				t.Errorf("flags = %v/%v/%v, want %v/%v/%v",
					l.IsLoading(), l.IsMetricsLoading(), l.IsError(),
					tt.loading, tt.metricsLoading, tt.isError)
			}
		})
	}
}

func TestFinal(t *testing.T) {
	ch := make(chan Listing[int], 2)
	ch <- Listing[int]{Stage: Partial, Items: []int{1}}
	ch <- Listing[int]{Stage: Complete, Items: []int{2}}
	close(ch)

	if got := Final(ch); got.Stage != Complete || got.Items[0] != 2 {
		t.Errorf("Final() = %+v", got)
	}

	empty := make(chan Listing[int])
	close(empty)
	if got := Final(empty); got.Stage != Pending {
		t.Errorf("Final(empty) = %+v, want pending", got)
	}
}

func TestWithin(t *testing.T) {
	t.Run("completes in time", func(t *testing.T) {
		ch := make(chan Listing[int], 2)
		ch <- Listing[int]{Stage: Partial}
		go func() {
			time.Sleep(10 * time.Millisecond)
			ch <- Listing[int]{Stage: Complete, Items: []int{1}}
			close(ch)
		}()

		if got := Within(ch, time.Second); got.Stage != Complete {
			t.Errorf("Within() = %v, want complete", got.Stage)
		}
	})

	t.Run("gives up with partial", func(t *testing.T) {
		ch := make(chan Listing[int], 2)
		ch <- Listing[int]{Stage: Partial, Items: []int{1}}
		defer close(ch)

		start := time.Now()
		got := Within(ch, 20*time.Millisecond)
		if got.Stage != Partial || len(got.Items) != 1 {
			t.Errorf("Within() = %+v, want the partial snapshot", got)
		}
		if time.Since(start) > time.Second {
			t.Error("Within() did not honour the wait")
		}
	})

	t.Run("closed without snapshot", func(t *testing.T) {
		ch := make(chan Listing[int])
		close(ch)
		if got := Within(ch, time.Second); got.Stage != Pending {
			t.Errorf("Within() = %v, want pending", got.Stage)
		}
	})
}
