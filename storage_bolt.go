package kvdoc

import (
	"bytes"
	"context"
	"fmt"
	"time"
	"unsafe"

	"go.etcd.io/bbolt"
)

const (
	DefaultBoltBucket = "kvdoc"
	boltScanBatch     = 256
)

// BoltStore is a Store kept in a single Bolt bucket.
type BoltStore struct {
	bdb    *bbolt.DB
	bucket []byte
	owned  bool
}

var _ Store = (*BoltStore)(nil)

type BoltOptions struct {
	Bucket    string
	IsTesting bool
	MmapSize  int
}

// OpenBolt opens (creating if needed) a Bolt database file.
func OpenBolt(path string, opt BoltOptions) (*BoltStore, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("kvdoc: %w", err)
	}
	s, err := NewBoltStore(bdb, opt.Bucket)
	if err != nil {
		bdb.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewBoltStore uses an already open Bolt database. Close does not close bdb.
func NewBoltStore(bdb *bbolt.DB, bucket string) (*BoltStore, error) {
	if bucket == "" {
		bucket = DefaultBoltBucket
	}
	s := &BoltStore{bdb: bdb, bucket: []byte(bucket)}
	err := bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("kvdoc: creating bucket %s: %w", bucket, err)
	}
	return s, nil
}

func (s *BoltStore) Bolt() *bbolt.DB {
	return s.bdb
}

func (s *BoltStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		v := s.bucketIn(btx).Get(unsafeBytesFromString(key))
		if v != nil {
			value, found = string(v), true
		}
		return nil
	})
	return value, found, err
}

func (s *BoltStore) Set(ctx context.Context, key, value string) error {
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		return s.bucketIn(btx).Put([]byte(key), []byte(value))
	})
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		return s.bucketIn(btx).Delete([]byte(key))
	})
}

func (s *BoltStore) Scan(ctx context.Context, prefix string) (Cursor, error) {
	c := &boltCursor{s: s, prefix: []byte(prefix)}
	if err := c.fill(); err != nil {
		return nil, err
	}
	if len(c.batch) == 0 {
		return nil, nil
	}
	return c, nil
}

func (s *BoltStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.bdb.Close()
}

func (s *BoltStore) bucketIn(btx *bbolt.Tx) *bbolt.Bucket {
	return nonNil(btx.Bucket(s.bucket))
}

// boltCursor reads keys in batches, each in its own read transaction, and
// resumes after the last key it has seen. This keeps no transaction open
// between calls, so writers (including deletes issued by the scanning caller)
// are never blocked by a scan.
type boltCursor struct {
	s         *BoltStore
	prefix    []byte
	last      []byte
	batch     []string
	exhausted bool
}

func (c *boltCursor) Next(ctx context.Context) (string, bool, error) {
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

func (c *boltCursor) fill() error {
	return c.s.bdb.View(func(btx *bbolt.Tx) error {
		cur := c.s.bucketIn(btx).Cursor()
		var k []byte
		if c.last == nil {
			k, _ = cur.Seek(c.prefix)
		} else {
			k, _ = cur.Seek(c.last)
			if bytes.Equal(k, c.last) {
				k, _ = cur.Next()
			}
		}
		for ; k != nil && bytes.HasPrefix(k, c.prefix); k, _ = cur.Next() {
			if len(c.batch) == boltScanBatch {
				return nil
			}
			c.batch = append(c.batch, string(k))
			c.last = append(c.last[:0], k...)
		}
		c.exhausted = true
		return nil
	})
}

func (c *boltCursor) Close() error {
	c.batch = nil
	c.exhausted = true
	return nil
}

func nonNil[T any](v *T) *T {
	if v == nil {
		panic("nil")
	}
	return v
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
