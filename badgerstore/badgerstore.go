// Package badgerstore keeps kvdoc tables in a Badger database.
package badgerstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/andreyvit/kvdoc"
)

const scanBatch = 256

type Options struct {
	// Dir is the database directory. Ignored for in-memory databases.
	Dir      string
	InMemory bool
}

type Store struct {
	bdb     *badger.DB
	isOwner bool
}

var _ kvdoc.Store = (*Store)(nil)

func Open(opt Options) (*Store, error) {
	var bopt badger.Options
	if opt.InMemory {
		bopt = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopt = badger.DefaultOptions(opt.Dir)
	}
	bopt = bopt.WithLoggingLevel(badger.WARNING)
	bdb, err := badger.Open(bopt)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: %w", err)
	}
	return &Store{bdb: bdb, isOwner: true}, nil
}

// New wraps an open database. Close does not close it.
func New(bdb *badger.DB) *Store {
	return &Store{bdb: bdb}
}

func (s *Store) Badger() *badger.DB {
	return s.bdb
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value []byte
	err := s.bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.bdb.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.bdb.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *Store) Scan(ctx context.Context, prefix string) (kvdoc.Cursor, error) {
	c := &cursor{s: s, prefix: []byte(prefix)}
	if err := c.fill(); err != nil {
		return nil, err
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
	return s.bdb.Close()
}

// cursor reads keys in batches, each in its own read-only transaction, and
// resumes after the last key it has returned.
type cursor struct {
	s         *Store
	prefix    []byte
	last      []byte
	batch     []string
	exhausted bool
}

func (c *cursor) Next(ctx context.Context) (string, bool, error) {
	if len(c.batch) == 0 {
		if c.exhausted {
			return "", false, nil
		}
		if err := c.fill(); err != nil {
			return "", false, err
		}
		if len(c.batch) == 0 {
			return "", false, nil
		}
	}
	key := c.batch[0]
	c.batch = c.batch[1:]
	return key, true, nil
}

func (c *cursor) fill() error {
	return c.s.bdb.View(func(txn *badger.Txn) error {
		iopt := badger.DefaultIteratorOptions
		iopt.PrefetchValues = false
		iopt.Prefix = c.prefix
		it := txn.NewIterator(iopt)
		defer it.Close()

		if c.last == nil {
			it.Seek(c.prefix)
		} else {
			it.Seek(c.last)
			if it.Valid() && bytes.Equal(it.Item().Key(), c.last) {
				it.Next()
			}
		}
		for ; it.ValidForPrefix(c.prefix); it.Next() {
			if len(c.batch) == scanBatch {
				return nil
			}
			k := it.Item().KeyCopy(nil)
			c.batch = append(c.batch, string(k))
			c.last = k
		}
		c.exhausted = true
		return nil
	})
}

func (c *cursor) Close() error {
	c.batch = nil
	c.exhausted = true
	return nil
}
