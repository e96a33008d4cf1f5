// Package storetest checks kvdoc.Store implementations against the behavior
// tables rely on.
package storetest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/andreyvit/kvdoc"
)

// Run exercises a store. open must return an empty store; Run closes it.
// Ordered reports whether the store returns scanned keys in key order.
func Run(t *testing.T, ordered bool, open func(t *testing.T) kvdoc.Store) {
	ctx := context.Background()

	t.Run("get set delete", func(t *testing.T) {
		s := start(t, open)
		_, found := get(t, s, "a")
		if found {
			t.Fatalf("a found in empty store")
		}
		ensure(t, s.Set(ctx, "a", "1"))
		ensure(t, s.Set(ctx, "b", ""))
		if v, found := get(t, s, "a"); !found || v != "1" {
			t.Errorf("** Get(a) = %q, %v, wanted %q", v, found, "1")
		}
		if v, found := get(t, s, "b"); !found || v != "" {
			t.Errorf("** Get(b) = %q, %v, wanted empty value", v, found)
		}
		ensure(t, s.Set(ctx, "a", "2"))
		if v, _ := get(t, s, "a"); v != "2" {
			t.Errorf("** Get(a) = %q after overwrite, wanted %q", v, "2")
		}
		ensure(t, s.Delete(ctx, "a"))
		ensure(t, s.Delete(ctx, "a"))
		if _, found := get(t, s, "a"); found {
			t.Errorf("** a found after delete")
		}
	})

	t.Run("scan empty", func(t *testing.T) {
		s := start(t, open)
		ensure(t, s.Set(ctx, "TBL:x-1", "v"))
		keys := scan(t, s, "TBL:y-")
		if len(keys) != 0 {
			t.Errorf("** scan = %v, wanted nothing", keys)
		}
	})

	t.Run("scan prefix", func(t *testing.T) {
		s := start(t, open)
		for _, k := range []string{"TBL:a-3", "TBL:a-1", "TBL:ab-1", "TBL:a-2", "TBL:b-1", "TBL:a-PTR:f-x/1"} {
			ensure(t, s.Set(ctx, k, "v"))
		}
		keys := scan(t, s, "TBL:a-")
		if !ordered {
			slices.Sort(keys)
		}
		eq(t, keys, []string{"TBL:a-1", "TBL:a-2", "TBL:a-3", "TBL:a-PTR:f-x/1"})
	})

	t.Run("scan glob characters", func(t *testing.T) {
		s := start(t, open)
		ensure(t, s.Set(ctx, "TBL:a-[x]*?", "v"))
		ensure(t, s.Set(ctx, "TBL:a-[y]", "v"))
		eq(t, scan(t, s, "TBL:a-[x]"), []string{"TBL:a-[x]*?"})
	})

	t.Run("delete while scanning", func(t *testing.T) {
		s := start(t, open)
		var want []string
		for i := range 600 {
			k := fmt.Sprintf("TBL:d-%04d", i)
			ensure(t, s.Set(ctx, k, "v"))
			want = append(want, k)
		}
		cur, err := s.Scan(ctx, "TBL:d-")
		ensure(t, err)
		var got []string
		for {
			k, ok, err := cur.Next(ctx)
			ensure(t, err)
			if !ok {
				break
			}
			got = append(got, k)
			ensure(t, s.Delete(ctx, k))
		}
		ensure(t, cur.Close())
		if !ordered {
			slices.Sort(got)
		}
		eq(t, got, want)
		eq(t, scan(t, s, "TBL:d-"), []string(nil))
	})
}

// Logger returns a logger writing into the test log.
func Logger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func start(t *testing.T, open func(t *testing.T) kvdoc.Store) kvdoc.Store {
	s := open(t)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Error(err)
		}
	})
	return s
}

func get(t *testing.T, s kvdoc.Store, key string) (string, bool) {
	t.Helper()
	v, found, err := s.Get(context.Background(), key)
	ensure(t, err)
	return v, found
}

func scan(t *testing.T, s kvdoc.Store, prefix string) []string {
	t.Helper()
	ctx := context.Background()
	cur, err := s.Scan(ctx, prefix)
	ensure(t, err)
	if cur == nil {
		return nil
	}
	defer cur.Close()
	var keys []string
	for {
		k, ok, err := cur.Next(ctx)
		ensure(t, err)
		if !ok {
			return keys
		}
		keys = append(keys, k)
	}
}

func eq(t *testing.T, a, e []string) {
	t.Helper()
	if !slices.Equal(a, e) {
		t.Errorf("** got %q, wanted %q", a, e)
	}
}

func ensure(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	msg := string(buf)
	origLen := len(msg)
	msg = strings.TrimSuffix(msg, "\n")
	c.t.Log(msg)
	return origLen, nil
}
