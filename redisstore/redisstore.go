// Package redisstore keeps kvdoc tables in Redis.
package redisstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/andreyvit/kvdoc"
)

const defaultScanCount = 100

type Options struct {
	Addr     string
	Password string
	DB       int

	// Namespace is prepended to every key, allowing several databases to
	// share one Redis instance.
	Namespace string

	// ScanCount is the COUNT hint passed to SCAN.
	ScanCount int64
}

type Store struct {
	client    redis.UniversalClient
	namespace string
	scanCount int64
	isOwner   bool
}

var _ kvdoc.Store = (*Store)(nil)

// Open connects to Redis. The returned store owns the connection.
func Open(ctx context.Context, opt Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisstore: connecting to %s: %w", opt.Addr, err)
	}
	s := New(client, opt)
	s.isOwner = true
	return s, nil
}

// New wraps an existing client. Close does not close it.
func New(client redis.UniversalClient, opt Options) *Store {
	scanCount := opt.ScanCount
	if scanCount <= 0 {
		scanCount = defaultScanCount
	}
	return &Store{
		client:    client,
		namespace: opt.Namespace,
		scanCount: scanCount,
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.namespace+key).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.namespace+key, value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.namespace+key).Err()
}

// Scan walks the matching keys with SCAN MATCH. Keys come in no particular
// order; keys that SCAN reports more than once are returned once.
func (s *Store) Scan(ctx context.Context, prefix string) (kvdoc.Cursor, error) {
	c := &cursor{
		s:     s,
		match: escapeGlob(s.namespace+prefix) + "*",
		seen:  make(map[string]struct{}),
	}
	for len(c.batch) == 0 && !c.done {
		if err := c.fill(ctx); err != nil {
			return nil, err
		}
	}
	if len(c.batch) == 0 {
		return nil, nil
	}
	return c, nil
}

func (s *Store) Close() error {
	if !s.isOwner {
		return nil
	}
	return s.client.Close()
}

type cursor struct {
	s      *Store
	match  string
	pos    uint64
	batch  []string
	seen   map[string]struct{}
	done   bool
	closed bool
}

func (c *cursor) Next(ctx context.Context) (string, bool, error) {
	for len(c.batch) == 0 {
		if c.done || c.closed {
			return "", false, nil
		}
		if err := c.fill(ctx); err != nil {
			return "", false, err
		}
	}
	key := c.batch[0]
	c.batch = c.batch[1:]
	return key, true, nil
}

func (c *cursor) fill(ctx context.Context) error {
	keys, next, err := c.s.client.Scan(ctx, c.pos, c.match, c.s.scanCount).Result()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, dup := c.seen[k]; dup {
			continue
		}
		c.seen[k] = struct{}{}
		c.batch = append(c.batch, strings.TrimPrefix(k, c.s.namespace))
	}
	c.pos = next
	if next == 0 {
		c.done = true
	}
	return nil
}

func (c *cursor) Close() error {
	c.closed = true
	c.batch = nil
	return nil
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var buf strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			buf.WriteByte('\\')
		}
		buf.WriteRune(r)
	}
	return buf.String()
}
