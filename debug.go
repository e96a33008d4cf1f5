package kvdoc

import (
	"context"
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpTableHeaders = DumpFlags(1 << iota)
	DumpRecords
	DumpStats
	DumpPointers

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the contents of every table, for debugging.
func (db *DB) Dump(ctx context.Context, f DumpFlags) (string, error) {
	var buf strings.Builder
	for _, tbl := range db.Tables() {
		if err := tbl.dump(ctx, &buf, f); err != nil {
			return buf.String(), err
		}
	}
	return buf.String(), nil
}

func (tbl *Table) dump(ctx context.Context, w *strings.Builder, f DumpFlags) error {
	s, err := tbl.Stats(ctx)
	if err != nil {
		return err
	}
	if f.Contains(DumpTableHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d records) %s %s\n", tbl.name, s.Records, tbl.kind, tbl.schema)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: records = %d, pointers = %d, data_size = %d, pointer_size = %d\n", tbl.name, s.Records, s.Pointers, s.DataSize, s.PointerSize)
	}
	if f.Contains(DumpRecords) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(w, dumpSep2)
		}
		var pos int
		err := tbl.traverse(ctx, All, func(key string) error {
			pos++
			tbl.dumpRecord(ctx, w, pos, key)
			return nil
		})
		if err != nil {
			return err
		}
	}
	if f.Contains(DumpPointers) {
		for _, field := range tbl.PointerFields() {
			fmt.Fprintln(w, dumpSep2)
			fmt.Fprintf(w, "%s.ptr.%s\n", tbl.name, field)
			var pos int
			err := tbl.traverse(ctx, Query{Field: field, Limit: Unpaginated}, func(key string) error {
				pos++
				target, err := tbl.readPointer(ctx, key)
				if err != nil {
					fmt.Fprintf(w, "%s.ptr.%s.%d: %s ** ERROR: %v\n", tbl.name, field, pos, key, err)
				} else {
					fmt.Fprintf(w, "%s.ptr.%s.%d: %s => %s\n", tbl.name, field, pos, key, target)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (tbl *Table) dumpRecord(ctx context.Context, w *strings.Builder, pos int, key string) {
	v, err := tbl.resolve(ctx, key)
	if err != nil {
		fmt.Fprintf(w, "%s.%d: %s ** ERROR: %v\n", tbl.name, pos, key, err)
		return
	}
	if tbl.suppressContent {
		fmt.Fprintf(w, "%s.%d: %s = <suppressed>\n", tbl.name, pos, key)
		return
	}
	fmt.Fprintf(w, "%s.%d: %s = %s\n", tbl.name, pos, key, loggableAny(v))
}
