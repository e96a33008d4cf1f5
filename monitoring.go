package kvdoc

import (
	"context"
)

type TableStats struct {
	Records  int
	Pointers int

	DataSize    int
	PointerSize int
}

func (ts *TableStats) TotalSize() int {
	return ts.DataSize + ts.PointerSize
}

// Stats walks the whole table, master records and pointer partitions alike,
// and sums up stored key and value sizes.
func (tbl *Table) Stats(ctx context.Context) (TableStats, error) {
	var result TableStats
	prefix := tbl.Key("")
	cur, err := tbl.db.store.Scan(ctx, prefix)
	if err != nil {
		return result, queryErrf(tbl.name, prefix, err, "scan failed")
	}
	if cur == nil {
		return result, nil
	}
	defer cur.Close()

	for {
		key, ok, err := cur.Next(ctx)
		if err != nil {
			return result, queryErrf(tbl.name, prefix, err, "scan failed")
		}
		if !ok {
			return result, nil
		}
		raw, found, err := tbl.db.store.Get(ctx, key)
		if err != nil {
			return result, queryErrf(tbl.name, key, err, "store lookup failed")
		}
		if !found {
			continue
		}
		size := len(key) + len(raw)
		if tbl.inFieldPartition(key) {
			result.Pointers++
			result.PointerSize += size
		} else {
			result.Records++
			result.DataSize += size
		}
	}
}
