package kvdoc

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
)

// ErrClosed is returned by the bundled stores after Close.
var ErrClosed = errors.New("store closed")

// MemStore is a transient in-memory Store, mainly intended for tests.
type MemStore struct {
	mu     sync.Mutex
	items  []memKV // sorted by key
	closed bool
}

type memKV struct {
	key   string
	value string
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	i, ok := s.find(key)
	if !ok {
		return "", false, nil
	}
	return s.items[i].value, true, nil
}

func (s *MemStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	i, ok := s.find(key)
	if ok {
		s.items[i].value = value
		return nil
	}
	s.items = slices.Insert(s.items, i, memKV{key: key, value: value})
	return nil
}

func (s *MemStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	i, ok := s.find(key)
	if !ok {
		return nil
	}
	s.items = slices.Delete(s.items, i, i+1)
	return nil
}

func (s *MemStore) Scan(ctx context.Context, prefix string) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	i, _ := s.find(prefix)
	if i >= len(s.items) || !strings.HasPrefix(s.items[i].key, prefix) {
		return nil, nil
	}
	return &memCursor{s: s, prefix: prefix}, nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = nil
	return nil
}

// Len returns the number of stored keys.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemStore) find(key string) (idx int, ok bool) {
	items := s.items
	i := sort.Search(len(items), func(i int) bool {
		return items[i].key >= key
	})
	return i, i < len(items) && items[i].key == key
}

// memCursor remembers the last returned key rather than a position, so that
// insertions and deletions during the scan do not shift it.
type memCursor struct {
	s       *MemStore
	prefix  string
	last    string
	started bool
	done    bool
}

func (c *memCursor) Next(ctx context.Context) (string, bool, error) {
	if c.done {
		return "", false, nil
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.closed {
		return "", false, ErrClosed
	}
	items := c.s.items
	var i int
	if c.started {
		i = sort.Search(len(items), func(i int) bool {
			return items[i].key > c.last
		})
	} else {
		i, _ = c.s.find(c.prefix)
	}
	if i >= len(items) || !strings.HasPrefix(items[i].key, c.prefix) {
		c.done = true
		return "", false, nil
	}
	c.started = true
	c.last = items[i].key
	return c.last, true, nil
}

func (c *memCursor) Close() error {
	c.done = true
	return nil
}
