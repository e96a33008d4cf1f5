package kvdoc_test

import (
	"path/filepath"
	"testing"

	"github.com/andreyvit/kvdoc"
	"github.com/andreyvit/kvdoc/storetest"
)

func TestMemStore(t *testing.T) {
	storetest.Run(t, true, func(t *testing.T) kvdoc.Store {
		return kvdoc.NewMemStore()
	})
}

func TestBoltStore(t *testing.T) {
	storetest.Run(t, true, func(t *testing.T) kvdoc.Store {
		s, err := kvdoc.OpenBolt(filepath.Join(t.TempDir(), "test.db"), kvdoc.BoltOptions{IsTesting: true})
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}
