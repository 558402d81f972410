package cache

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStore keeps entries in process
type MemoryStore struct {
	entries *xsync.MapOf[string, Entry]
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-process store. Entries older than ttl are dropped on read;
// ttl <= 0 keeps them until Prune.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: xsync.NewMapOf[string, Entry](),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the entry under key
func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	entry, ok := s.entries.Load(key)
	if !ok {
		return Entry{}, false, nil
	}
	if s.ttl > 0 && !entry.Fresh(s.ttl, s.now()) {
		s.entries.Delete(key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put stores entry under key, replacing any previous value
func (s *MemoryStore) Put(ctx context.Context, key string, entry Entry) error {
	s.entries.Store(key, entry)
	return nil
}

// Prune drops entries fetched more than maxAge ago and returns how many were removed
func (s *MemoryStore) Prune(maxAge time.Duration) int {
	now := s.now()
	removed := 0
	s.entries.Range(func(key string, entry Entry) bool {
		if !entry.Fresh(maxAge, now) {
			s.entries.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Len returns the number of stored entries
func (s *MemoryStore) Len() int {
	return s.entries.Size()
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
